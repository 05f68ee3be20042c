package segment

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MarshalBinary encodes the mask as width, height and little-endian float32s.
func (m Mask) MarshalBinary() ([]byte, error) {
	if len(m.Values) != m.Width*m.Height {
		return nil, fmt.Errorf("mask has %d values for %dx%d", len(m.Values), m.Width, m.Height)
	}
	buf := make([]byte, 8+4*len(m.Values))
	binary.LittleEndian.PutUint32(buf[0:], uint32(m.Width))
	binary.LittleEndian.PutUint32(buf[4:], uint32(m.Height))
	for i, v := range m.Values {
		binary.LittleEndian.PutUint32(buf[8+4*i:], math.Float32bits(v))
	}
	return buf, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (m *Mask) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("mask payload too short: %d bytes", len(data))
	}
	w := int(binary.LittleEndian.Uint32(data[0:]))
	h := int(binary.LittleEndian.Uint32(data[4:]))
	if len(data) != 8+4*w*h {
		return fmt.Errorf("mask payload is %d bytes, want %d for %dx%d", len(data), 8+4*w*h, w, h)
	}
	values := make([]float32, w*h)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[8+4*i:]))
	}
	m.Width, m.Height, m.Values = w, h, values
	return nil
}
