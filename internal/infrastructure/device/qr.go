package device

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QRCodeEncoder renders pairing payloads as PNG QR images.
type QRCodeEncoder struct {
	size int
}

// NewQRCodeEncoder creates an encoder producing size x size pixel
// images.
func NewQRCodeEncoder(size int) *QRCodeEncoder {
	if size <= 0 {
		size = 256
	}
	return &QRCodeEncoder{size: size}
}

func (e *QRCodeEncoder) Encode(payload []byte) ([]byte, error) {
	image, err := qrcode.Encode(string(payload), qrcode.Medium, e.size)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}
	return image, nil
}
