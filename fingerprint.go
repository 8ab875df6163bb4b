package imagemerge

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Method selects the perceptual fingerprint algorithm.
type Method string

const (
	MethodDHash Method = "dhash" // difference hash over a 9x8 luminance grid
	MethodAHash Method = "ahash" // average hash over an 8x8 luminance grid
	MethodPHash Method = "phash" // DCT perception hash (goimagehash)
)

// MaxDistance is the largest possible distance between two fingerprints.
const MaxDistance = 64

const hashSize = 8

// ParseMethod validates a method name. Empty selects MethodDHash.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodDHash, nil
	case MethodDHash, MethodAHash, MethodPHash:
		return m, nil
	default:
		return "", fmt.Errorf("imagemerge: unknown fingerprint method %q", s)
	}
}

func (m Method) kind() goimagehash.Kind {
	switch m {
	case MethodAHash:
		return goimagehash.AHash
	case MethodPHash:
		return goimagehash.PHash
	default:
		return goimagehash.DHash
	}
}

// Fingerprint is a 64-bit perceptual hash of one image.
// The zero value means "no fingerprint".
type Fingerprint struct {
	h *goimagehash.ImageHash
}

// NewFingerprint wraps a raw 64-bit value produced by method m.
func NewFingerprint(hash uint64, m Method) Fingerprint {
	return Fingerprint{h: goimagehash.NewImageHash(hash, m.kind())}
}

// IsZero reports whether f carries no value.
func (f Fingerprint) IsZero() bool { return f.h == nil }

// Uint64 returns the raw bits, row-major with the first cell in the MSB.
func (f Fingerprint) Uint64() uint64 {
	if f.h == nil {
		return 0
	}
	return f.h.GetHash()
}

func (f Fingerprint) String() string {
	if f.h == nil {
		return "<none>"
	}
	return f.h.ToString()
}

// Distance returns the Hamming distance between a and b, in [0, MaxDistance].
// Both must come from the same Method; mixing methods is a programming error.
func Distance(a, b Fingerprint) int {
	d, err := a.h.Distance(b.h)
	if err != nil {
		panic(fmt.Sprintf("imagemerge: %v (%s vs %s)", err, a, b))
	}
	return d
}

// ComputeFingerprint hashes decoded pixel data with method m.
func ComputeFingerprint(img image.Image, m Method) (Fingerprint, error) {
	if img == nil || img.Bounds().Empty() {
		return Fingerprint{}, fmt.Errorf("imagemerge: empty image")
	}
	switch m {
	case MethodDHash, "":
		return NewFingerprint(differenceHash(img), MethodDHash), nil
	case MethodAHash:
		return NewFingerprint(averageHash(img), MethodAHash), nil
	case MethodPHash:
		h, err := goimagehash.PerceptionHash(img)
		if err != nil {
			return Fingerprint{}, err
		}
		return Fingerprint{h: h}, nil
	default:
		return Fingerprint{}, fmt.Errorf("imagemerge: unknown fingerprint method %q", m)
	}
}

// FingerprintFile decodes the image at path and hashes it.
// ok is false for missing, undecodable or corrupt files.
func FingerprintFile(path string, m Method) (fp Fingerprint, ok bool) {
	defer func() {
		// Some decoders panic on truncated input.
		if r := recover(); r != nil {
			fp, ok = Fingerprint{}, false
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, false
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return Fingerprint{}, false
	}
	fp, err = ComputeFingerprint(img, m)
	if err != nil {
		return Fingerprint{}, false
	}
	return fp, true
}

// luminanceGrid converts img to luminance and resizes it to w x h with a
// Lanczos filter, returning row-major 8-bit samples.
func luminanceGrid(img image.Image, w, h int) []uint8 {
	gray := imaging.Resize(imaging.Grayscale(img), w, h, imaging.Lanczos)
	out := make([]uint8, 0, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < w; x++ {
			out = append(out, row[x*4])
		}
	}
	return out
}

func differenceHash(img image.Image) uint64 {
	const w = hashSize + 1
	px := luminanceGrid(img, w, hashSize)
	var v uint64
	for y := 0; y < hashSize; y++ {
		for x := 0; x < hashSize; x++ {
			v <<= 1
			if px[y*w+x] > px[y*w+x+1] {
				v |= 1
			}
		}
	}
	return v
}

func averageHash(img image.Image) uint64 {
	px := luminanceGrid(img, hashSize, hashSize)
	var sum int
	for _, p := range px {
		sum += int(p)
	}
	mean := float64(sum) / float64(len(px))
	var v uint64
	for _, p := range px {
		v <<= 1
		if float64(p) > mean {
			v |= 1
		}
	}
	return v
}
