package editor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/pdfdesk/pdfengine/object"
)

var (
	jpegMagic = []byte{0xFF, 0xD8}
	pngMagic  = []byte{0x89, 'P', 'N', 'G'}
)

// importedImage is an image XObject ready for placement, plus its pixel
// dimensions.
type importedImage struct {
	Ref    object.Ref
	Width  int
	Height int
}

// importImage builds an image XObject from raw JPEG or PNG bytes. JPEG
// data passes through as a DCT stream; PNG is decoded and stored as
// flate-compressed RGB with a soft mask when it carries alpha.
func (e *Editor) importImage(ctx context.Context, doc *object.Document, data []byte) (importedImage, error) {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return e.importJPEG(doc, data)
	case bytes.HasPrefix(data, pngMagic):
		return e.importPNG(ctx, doc, data)
	}
	return importedImage{}, fmt.Errorf("image format not recognized (want JPEG or PNG)")
}

func (e *Editor) importJPEG(doc *object.Document, data []byte) (importedImage, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return importedImage{}, fmt.Errorf("jpeg header: %w", err)
	}
	space := object.Name("DeviceRGB")
	switch cfg.ColorModel {
	case color.GrayModel:
		space = "DeviceGray"
	case color.CMYKModel:
		space = "DeviceCMYK"
	}

	dict := object.NewDict()
	dict.Set("Type", object.Name("XObject"))
	dict.Set("Subtype", object.Name("Image"))
	dict.Set("Width", object.Int(int64(cfg.Width)))
	dict.Set("Height", object.Int(int64(cfg.Height)))
	dict.Set("BitsPerComponent", object.Int(8))
	dict.Set("ColorSpace", space)
	dict.Set("Filter", object.Name("DCTDecode"))
	stream := object.NewStream(dict, data)
	ref := doc.Put(stream)
	return importedImage{Ref: ref, Width: cfg.Width, Height: cfg.Height}, nil
}

func (e *Editor) importPNG(ctx context.Context, doc *object.Document, data []byte) (importedImage, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return importedImage{}, fmt.Errorf("png decode: %w", err)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)

	pixels := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for i := 0; i < w*h; i++ {
		off := i * 4
		pixels = append(pixels, nrgba.Pix[off], nrgba.Pix[off+1], nrgba.Pix[off+2])
		a := nrgba.Pix[off+3]
		alpha = append(alpha, a)
		if a < 255 {
			hasAlpha = true
		}
	}

	dict := object.NewDict()
	dict.Set("Type", object.Name("XObject"))
	dict.Set("Subtype", object.Name("Image"))
	dict.Set("Width", object.Int(int64(w)))
	dict.Set("Height", object.Int(int64(h)))
	dict.Set("BitsPerComponent", object.Int(8))
	dict.Set("ColorSpace", object.Name("DeviceRGB"))

	if hasAlpha {
		maskDict := object.NewDict()
		maskDict.Set("Type", object.Name("XObject"))
		maskDict.Set("Subtype", object.Name("Image"))
		maskDict.Set("Width", object.Int(int64(w)))
		maskDict.Set("Height", object.Int(int64(h)))
		maskDict.Set("BitsPerComponent", object.Int(8))
		maskDict.Set("ColorSpace", object.Name("DeviceGray"))
		mask, err := e.pipeline.NewStream(ctx, maskDict, alpha, "FlateDecode")
		if err != nil {
			return importedImage{}, err
		}
		maskRef := doc.Put(mask)
		dict.Set("SMask", object.NewReference(maskRef.Num, maskRef.Gen))
	}

	stream, err := e.pipeline.NewStream(ctx, dict, pixels, "FlateDecode")
	if err != nil {
		return importedImage{}, err
	}
	ref := doc.Put(stream)
	return importedImage{Ref: ref, Width: w, Height: h}, nil
}

// InsertImagePage inserts a page holding the image at its natural size
// (72 dpi) before the index-th page; index == pageCount appends.
func (e *Editor) InsertImagePage(ctx context.Context, doc *object.Document, index int, imageData []byte) error {
	img, err := e.importImage(ctx, doc, imageData)
	if err != nil {
		return err
	}
	media := object.Rectangle{URX: float64(img.Width), URY: float64(img.Height)}
	if err := e.InsertBlankPage(doc, index, media); err != nil {
		return err
	}
	page, err := doc.Page(index)
	if err != nil {
		return err
	}
	name := registerXObject(doc, page, img.Ref)
	ops := []byte("q\n" +
		num(media.Width()) + " 0 0 " + num(media.Height()) + " 0 0 cm\n" +
		"/" + string(name) + " Do\nQ\n")
	return e.appendOverlay(ctx, doc, page, ops)
}
