package filters

import (
	"fmt"

	"github.com/pdfdesk/pdfengine/object"
)

// reversePredictor undoes the row predictor declared in DecodeParms.
// Predictor 1 (or absent) is the identity; 2 is the TIFF horizontal
// differencing predictor; 10-15 are the PNG row filters, where the actual
// filter type is stored per row and the declared value only signals "PNG".
func reversePredictor(data []byte, parms *object.Dict) ([]byte, error) {
	if parms == nil {
		return data, nil
	}
	predictor, _ := parms.GetInt("Predictor")
	if predictor <= 1 {
		return data, nil
	}
	colors := int64(1)
	if v, ok := parms.GetInt("Colors"); ok {
		colors = v
	}
	bpc := int64(8)
	if v, ok := parms.GetInt("BitsPerComponent"); ok {
		bpc = v
	}
	columns := int64(1)
	if v, ok := parms.GetInt("Columns"); ok {
		columns = v
	}
	bytesPerPixel := int((colors*bpc + 7) / 8)
	rowLen := int((colors*bpc*columns + 7) / 8)
	if rowLen <= 0 || bytesPerPixel <= 0 {
		return nil, fmt.Errorf("%w: invalid predictor parameters", ErrCorruptData)
	}

	if predictor == 2 {
		if bpc != 8 {
			return nil, fmt.Errorf("TIFF predictor with %d bits per component: %w", bpc, ErrUnsupportedFilter)
		}
		for r := 0; r+rowLen <= len(data); r += rowLen {
			row := data[r : r+rowLen]
			for i := bytesPerPixel; i < len(row); i++ {
				row[i] += row[i-bytesPerPixel]
			}
		}
		return data, nil
	}
	if predictor < 10 || predictor > 15 {
		return nil, fmt.Errorf("predictor %d: %w", predictor, ErrUnsupportedFilter)
	}

	// PNG predictors: each row is prefixed with its filter type byte.
	stride := rowLen + 1
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		ft := data[r*stride]
		row := make([]byte, rowLen)
		copy(row, data[r*stride+1:(r+1)*stride])
		switch ft {
		case 0: // None
		case 1: // Sub
			for i := bytesPerPixel; i < rowLen; i++ {
				row[i] += row[i-bytesPerPixel]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				row[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bytesPerPixel {
					left = row[i-bytesPerPixel]
				}
				row[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bytesPerPixel {
					left = row[i-bytesPerPixel]
					upLeft = prev[i-bytesPerPixel]
				}
				row[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("%w: PNG row filter %d", ErrCorruptData, ft)
		}
		out = append(out, row...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
