package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/kbinani/screenshot"
)

// Sampler produces one frame of the primary display.
type Sampler interface {
	Sample() (image.Image, error)
}

// ScreenSampler captures the physical display via the OS screenshot API.
type ScreenSampler struct {
	Display int
}

func (s *ScreenSampler) Sample() (image.Image, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("no active displays")
	}
	if s.Display >= n {
		return nil, fmt.Errorf("display %d not available (%d active)", s.Display, n)
	}
	img, err := screenshot.CaptureDisplay(s.Display)
	if err != nil {
		return nil, fmt.Errorf("capture display %d: %w", s.Display, err)
	}
	return img, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
