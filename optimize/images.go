package optimize

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/pdfdesk/pdfengine/object"
)

// recompressImage decodes one image XObject, optionally downsamples it
// to the target density, re-encodes it as JPEG and swaps the payload in
// place when that is a win. Returns the bytes saved (0 when left alone).
func (o *Optimizer) recompressImage(ctx context.Context, doc *object.Document, ref object.Ref, placement placement) (int64, error) {
	stream, ok := doc.ResolveStream(object.NewReference(ref.Num, ref.Gen))
	if !ok {
		return 0, &ImageError{Ref: ref, Reason: "not a stream"}
	}
	if mask, _ := stream.Dict.GetBool("ImageMask"); mask {
		return 0, &ImageError{Ref: ref, Reason: "stencil mask"}
	}

	img, gray, err := o.decodePixels(ctx, doc, ref, stream)
	if err != nil {
		return 0, err
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	targetW, targetH := w, h
	if o.cfg.TargetDPI > 0 && placement.width > 0 && placement.height > 0 {
		maxW := int(placement.width / 72 * o.cfg.TargetDPI)
		maxH := int(placement.height / 72 * o.cfg.TargetDPI)
		if maxW > 0 && maxH > 0 && (maxW < w || maxH < h) {
			targetW, targetH = maxW, maxH
		}
	}
	if targetW != w || targetH != h {
		img = resample(img, gray, targetW, targetH)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: o.cfg.Quality}); err != nil {
		return 0, &ImageError{Ref: ref, Reason: "jpeg encode: " + err.Error()}
	}
	before := int64(len(stream.RawBytes()))
	after := int64(buf.Len())
	if after >= before {
		return 0, nil
	}

	dict := stream.Dict
	dict.Set("Width", object.Int(int64(targetW)))
	dict.Set("Height", object.Int(int64(targetH)))
	dict.Set("BitsPerComponent", object.Int(8))
	if gray {
		dict.Set("ColorSpace", object.Name("DeviceGray"))
	} else {
		dict.Set("ColorSpace", object.Name("DeviceRGB"))
	}
	dict.Set("Filter", object.Name("DCTDecode"))
	dict.Delete("DecodeParms")
	dict.Delete("Decode")
	stream.SetRawBytes(buf.Bytes())
	doc.Touch(ref)
	return before - after, nil
}

// decodePixels turns an image XObject into pixels. Supported sources:
// DCT payloads and 8-bit DeviceGray/DeviceRGB/DeviceCMYK/Indexed raw
// data. The bool result reports a single-component image.
func (o *Optimizer) decodePixels(ctx context.Context, doc *object.Document, ref object.Ref, stream *object.Stream) (image.Image, bool, error) {
	decoded, err := o.pipeline.DecodeStream(ctx, stream)
	if err != nil {
		return nil, false, &ImageError{Ref: ref, Reason: "decode: " + err.Error()}
	}
	for _, f := range stream.FilterNames() {
		if f == "DCTDecode" {
			img, err := jpeg.Decode(bytes.NewReader(decoded))
			if err != nil {
				return nil, false, &ImageError{Ref: ref, Reason: "jpeg decode: " + err.Error()}
			}
			_, gray := img.(*image.Gray)
			return img, gray, nil
		}
		if f == "JPXDecode" || f == "JBIG2Decode" || f == "CCITTFaxDecode" {
			return nil, false, &ImageError{Ref: ref, Reason: "filter " + string(f) + " not supported"}
		}
	}

	bpc, _ := stream.Dict.GetInt("BitsPerComponent")
	if bpc != 8 {
		return nil, false, &ImageError{Ref: ref, Reason: "bit depth not supported"}
	}
	width, _ := stream.Dict.GetInt("Width")
	height, _ := stream.Dict.GetInt("Height")
	w, h := int(width), int(height)
	if w <= 0 || h <= 0 {
		return nil, false, &ImageError{Ref: ref, Reason: "missing dimensions"}
	}

	space := doc.Resolve(doc.DictGet(stream.Dict, "ColorSpace"))
	switch cs := space.(type) {
	case object.Name:
		switch cs {
		case "DeviceGray", "CalGray":
			return grayImage(ref, decoded, w, h)
		case "DeviceRGB", "CalRGB":
			return rgbImage(ref, decoded, w, h)
		case "DeviceCMYK":
			return cmykImage(ref, decoded, w, h)
		}
		return nil, false, &ImageError{Ref: ref, Reason: "color space " + string(cs) + " not supported"}
	case *object.Array:
		return o.indexedImage(ctx, doc, ref, cs, decoded, w, h)
	}
	return nil, false, &ImageError{Ref: ref, Reason: "color space missing"}
}

func grayImage(ref object.Ref, pix []byte, w, h int) (image.Image, bool, error) {
	if len(pix) < w*h {
		return nil, false, &ImageError{Ref: ref, Reason: "pixel data truncated"}
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, pix[:w*h])
	return img, true, nil
}

func rgbImage(ref object.Ref, pix []byte, w, h int) (image.Image, bool, error) {
	if len(pix) < w*h*3 {
		return nil, false, &ImageError{Ref: ref, Reason: "pixel data truncated"}
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		img.Pix[i*4] = pix[i*3]
		img.Pix[i*4+1] = pix[i*3+1]
		img.Pix[i*4+2] = pix[i*3+2]
		img.Pix[i*4+3] = 0xFF
	}
	return img, false, nil
}

func cmykImage(ref object.Ref, pix []byte, w, h int) (image.Image, bool, error) {
	if len(pix) < w*h*4 {
		return nil, false, &ImageError{Ref: ref, Reason: "pixel data truncated"}
	}
	img := image.NewCMYK(image.Rect(0, 0, w, h))
	copy(img.Pix, pix[:w*h*4])
	return img, false, nil
}

// indexedImage expands an Indexed color space with a DeviceRGB or
// DeviceGray base through its lookup table.
func (o *Optimizer) indexedImage(ctx context.Context, doc *object.Document, ref object.Ref, cs *object.Array, pix []byte, w, h int) (image.Image, bool, error) {
	if cs.Len() != 4 {
		return nil, false, &ImageError{Ref: ref, Reason: "color space array not supported"}
	}
	family, _ := doc.Resolve(cs.At(0)).(object.Name)
	if family != "Indexed" {
		return nil, false, &ImageError{Ref: ref, Reason: "color space " + string(family) + " not supported"}
	}
	base, _ := doc.Resolve(cs.At(1)).(object.Name)
	comps := 0
	switch base {
	case "DeviceRGB", "CalRGB":
		comps = 3
	case "DeviceGray", "CalGray":
		comps = 1
	default:
		return nil, false, &ImageError{Ref: ref, Reason: "indexed base " + string(base) + " not supported"}
	}

	var lookup []byte
	switch t := doc.Resolve(cs.At(3)).(type) {
	case object.String:
		lookup = t.Data
	case *object.Stream:
		decoded, err := o.pipeline.DecodeStream(ctx, t)
		if err != nil {
			return nil, false, &ImageError{Ref: ref, Reason: "indexed lookup: " + err.Error()}
		}
		lookup = decoded
	default:
		return nil, false, &ImageError{Ref: ref, Reason: "indexed lookup missing"}
	}
	if len(pix) < w*h {
		return nil, false, &ImageError{Ref: ref, Reason: "pixel data truncated"}
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		off := int(pix[i]) * comps
		if off+comps > len(lookup) {
			return nil, false, &ImageError{Ref: ref, Reason: "palette index out of range"}
		}
		var r, g, b byte
		if comps == 3 {
			r, g, b = lookup[off], lookup[off+1], lookup[off+2]
		} else {
			r, g, b = lookup[off], lookup[off], lookup[off]
		}
		img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3] = r, g, b, 0xFF
	}
	return img, false, nil
}

// resample scales down with a Catmull-Rom kernel, keeping grayscale
// images single-component.
func resample(src image.Image, gray bool, w, h int) image.Image {
	if gray {
		dst := image.NewGray(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		return dst
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
