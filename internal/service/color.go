package service

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/crypto/blake2b"
)

// Color 由錢包地址決定一個固定的粉彩色，格式為 #rrggbb
func Color(walletAddress string) string {
	sum := blake2b.Sum256([]byte(walletAddress))

	hue := float64(binary.BigEndian.Uint16(sum[0:2]) % 360)
	saturation := 70 + float64(sum[2]%16)
	lightness := 65 + float64(sum[3]%11)

	r, g, b := hslToRGB(hue, saturation/100, lightness/100)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	a := s * math.Min(l, 1-l)
	f := func(n float64) uint8 {
		k := math.Mod(n+h/30, 12)
		v := l - a*math.Max(-1, math.Min(math.Min(k-3, 9-k), 1))
		return uint8(math.Round(v * 255))
	}
	return f(0), f(8), f(4)
}
