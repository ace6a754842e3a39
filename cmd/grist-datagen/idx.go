package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MNIST IDX container magics.
const (
	idxImagesMagic = 2051
	idxLabelsMagic = 2049
)

// loadIDXPartition reads the train or test split from a directory of
// official MNIST IDX files.
func loadIDXPartition(dir string, train bool) ([][]uint8, []int64, error) {
	imageFile := filepath.Join(dir, "t10k-images-idx3-ubyte")
	labelFile := filepath.Join(dir, "t10k-labels-idx1-ubyte")
	if train {
		imageFile = filepath.Join(dir, "train-images-idx3-ubyte")
		labelFile = filepath.Join(dir, "train-labels-idx1-ubyte")
	}

	images, err := readIDXImages(imageFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load images: %w", err)
	}
	labels, err := readIDXLabels(labelFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load labels: %w", err)
	}
	if len(images) != len(labels) {
		return nil, nil, fmt.Errorf("%d images but %d labels", len(images), len(labels))
	}
	return images, labels, nil
}

// readIDXImages reads an IDX image file:
//
//	uint32 magic (2051) | uint32 count | uint32 rows | uint32 cols | pixels
func readIDXImages(filename string) ([][]uint8, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var header struct {
		Magic, Count, Rows, Cols uint32
	}
	if err := binary.Read(f, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header.Magic != idxImagesMagic {
		return nil, fmt.Errorf("bad magic %d, want %d", header.Magic, idxImagesMagic)
	}

	size := int(header.Rows * header.Cols)
	images := make([][]uint8, header.Count)
	for i := range images {
		images[i] = make([]uint8, size)
		if _, err := io.ReadFull(f, images[i]); err != nil {
			return nil, fmt.Errorf("read image %d: %w", i, err)
		}
	}
	return images, nil
}

// readIDXLabels reads an IDX label file:
//
//	uint32 magic (2049) | uint32 count | labels
func readIDXLabels(filename string) ([]int64, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var header struct {
		Magic, Count uint32
	}
	if err := binary.Read(f, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header.Magic != idxLabelsMagic {
		return nil, fmt.Errorf("bad magic %d, want %d", header.Magic, idxLabelsMagic)
	}

	raw := make([]uint8, header.Count)
	if _, err := io.ReadFull(f, raw); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}

	labels := make([]int64, header.Count)
	for i, b := range raw {
		labels[i] = int64(b)
	}
	return labels, nil
}
