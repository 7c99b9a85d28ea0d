package operations

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// CompressZstd writes a Zstandard copy of inputPath to inputPath + ".zst".
// The original file is kept.
func CompressZstd(inputPath string) (string, error) {
	outputPath := inputPath + ".zst"

	inFile, err := os.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("failed to open input file: %w", err)
	}
	defer inFile.Close()

	outFile, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer outFile.Close()

	writer, err := zstd.NewWriter(outFile, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return "", fmt.Errorf("failed to create Zstandard writer: %w", err)
	}
	if _, err := io.Copy(writer, inFile); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to compress file: %w", err)
	}
	// Close flushes the final frame
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finish Zstandard stream: %w", err)
	}
	if err := outFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close output file: %w", err)
	}

	return outputPath, nil
}
