package render

import (
	"bytes"
	"image"
	"image/png"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode/decoder"
)

var qrHints = map[gozxing.EncodeHintType]interface{}{
	gozxing.EncodeHintType_ERROR_CORRECTION: decoder.ErrorCorrectionLevel_M,
	gozxing.EncodeHintType_MARGIN:           2,
}

// QRImage encodes content as a square QR symbol of the given pixel size.
func QRImage(content string, pixels int) (image.Image, error) {
	matrix, err := qrcode.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, pixels, pixels, qrHints)
	if err != nil {
		return nil, err
	}
	return matrix, nil
}

// DecodeQR reads a QR symbol from an image.
func DecodeQR(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", err
	}
	result, err := qrcode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return "", err
	}
	return result.GetText(), nil
}

func qrPNG(content string, pixels int) ([]byte, error) {
	img, err := QRImage(content, pixels)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
