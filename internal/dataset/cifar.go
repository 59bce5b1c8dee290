package dataset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
)

const (
	// ImageSide is the width and height of a CIFAR-10 image.
	ImageSide = 32

	// ImageBytes is the planar RGB payload of one record.
	ImageBytes  = 3 * ImageSide * ImageSide
	recordBytes = 1 + ImageBytes

	// TrainBatches is the number of data_batch_N.bin files in the archive.
	TrainBatches = 5

	// DefaultURL is the binary-format CIFAR-10 archive.
	DefaultURL = "https://www.cs.toronto.edu/~kriz/cifar-10-binary.tar.gz"

	archiveName = "cifar-10-binary.tar.gz"
	batchDir    = "cifar-10-batches-bin"
)

var (
	// ErrNotFound means the training batches are missing and download is off.
	ErrNotFound = errors.New("dataset: CIFAR-10 batches not found")
	// ErrTruncated means a batch file is not a whole number of records.
	ErrTruncated = errors.New("dataset: truncated CIFAR-10 batch file")
)

// Image is one 32x32 RGB image in CIFAR-10 planar layout: 1024 red bytes,
// then 1024 green, then 1024 blue, each plane row-major.
type Image [ImageBytes]byte

// RGBA converts the planar record into an *image.RGBA.
func (im *Image) RGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, ImageSide, ImageSide))
	const plane = ImageSide * ImageSide
	for i := 0; i < plane; i++ {
		o := i * 4
		out.Pix[o] = im[i]
		out.Pix[o+1] = im[plane+i]
		out.Pix[o+2] = im[2*plane+i]
		out.Pix[o+3] = 0xff
	}
	return out
}

// ImageFrom packs a 32x32 image into planar layout.
func ImageFrom(src image.Image) Image {
	var im Image
	b := src.Bounds()
	if b.Dx() != ImageSide || b.Dy() != ImageSide {
		panic(fmt.Sprintf("dataset: image must be %dx%d, got %v", ImageSide, ImageSide, b))
	}
	const plane = ImageSide * ImageSide
	for y := 0; y < ImageSide; y++ {
		for x := 0; x < ImageSide; x++ {
			c := color.RGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			i := y*ImageSide + x
			im[i], im[plane+i], im[2*plane+i] = c.R, c.G, c.B
		}
	}
	return im
}

// Dataset is an in-memory labeled image collection.
type Dataset struct {
	Images []Image
	Labels []int
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Images) }

// ParseRecords decodes concatenated 3073-byte CIFAR-10 records.
func ParseRecords(raw []byte) (*Dataset, error) {
	if len(raw)%recordBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrTruncated, len(raw), recordBytes)
	}
	n := len(raw) / recordBytes
	ds := &Dataset{Images: make([]Image, n), Labels: make([]int, n)}
	for i := 0; i < n; i++ {
		rec := raw[i*recordBytes : (i+1)*recordBytes]
		ds.Labels[i] = int(rec[0])
		copy(ds.Images[i][:], rec[1:])
	}
	return ds, nil
}

// LoadCIFAR10 reads every training batch file under dir.
func LoadCIFAR10(dir string) (*Dataset, error) {
	paths, err := DiscoverBatches(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNotFound, dir)
	}
	ds := &Dataset{}
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read batch: %w", err)
		}
		part, err := ParseRecords(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		ds.Images = append(ds.Images, part.Images...)
		ds.Labels = append(ds.Labels, part.Labels...)
	}
	return ds, nil
}

// Source says where the dataset cache lives and how to fill it.
type Source struct {
	Root     string
	URL      string
	Download bool
	Client   *http.Client
}

// EnsureCIFAR10 makes sure the extracted training batches exist under
// src.Root, downloading and extracting the archive when allowed. It returns
// the directory holding the batch files.
func EnsureCIFAR10(ctx context.Context, src Source) (string, error) {
	dir := filepath.Join(src.Root, batchDir)
	if complete(dir) {
		return dir, nil
	}

	archive := filepath.Join(src.Root, archiveName)
	if _, err := os.Stat(archive); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat archive: %w", err)
		}
		if !src.Download {
			return "", fmt.Errorf("%w under %s (download disabled)", ErrNotFound, src.Root)
		}
		if err := fetch(ctx, src, archive); err != nil {
			return "", err
		}
	}

	names, err := ExtractArchive(ctx, archive, src.Root)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", archive, err)
	}
	log.Printf("extracted archive=%s files=%d", archive, len(names))
	if !complete(dir) {
		return "", fmt.Errorf("%w: archive %s lacks %s/data_batch_1..%d.bin", ErrNotFound, archive, batchDir, TrainBatches)
	}
	return dir, nil
}

func complete(dir string) bool {
	for i := 1; i <= TrainBatches; i++ {
		if _, err := os.Stat(filepath.Join(dir, fmt.Sprintf("data_batch_%d.bin", i))); err != nil {
			return false
		}
	}
	return true
}

func fetch(ctx context.Context, src Source, dst string) error {
	url := src.URL
	if url == "" {
		url = DefaultURL
	}
	client := src.Client
	if client == nil {
		client = http.DefaultClient
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	log.Printf("downloading url=%s dst=%s", url, dst)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: unexpected status %s", resp.Status)
	}

	part := dst + ".part"
	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("create %s: %w", part, err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part)
		return fmt.Errorf("download body: %w", err)
	}
	if err := os.Rename(part, dst); err != nil {
		return fmt.Errorf("rename %s: %w", part, err)
	}
	log.Printf("downloaded bytes=%d dst=%s", n, dst)
	return nil
}
