package main

import "github.com/aretw0/bifrost/pkg/surface"

// parseKeys decodes raw terminal input. Arrow keys arrive as ESC [ C / ESC [ D;
// h and l work as well. quit reports q, Esc alone or Ctrl-C.
func parseKeys(b []byte) (keys []surface.Key, quit bool) {
	for i := 0; i < len(b); i++ {
		switch c := b[i]; c {
		case 0x1b:
			if i+2 < len(b) && b[i+1] == '[' {
				switch b[i+2] {
				case 'C':
					keys = append(keys, surface.KeyArrowRight)
				case 'D':
					keys = append(keys, surface.KeyArrowLeft)
				}
				i += 2
				continue
			}
			return keys, true
		case 0x03, 'q':
			return keys, true
		case '\r', '\n':
			keys = append(keys, surface.KeyEnter)
		case 0x7f, 0x08:
			keys = append(keys, surface.KeyBackspace)
		case 'l':
			keys = append(keys, surface.KeyArrowRight)
		case 'h':
			keys = append(keys, surface.KeyArrowLeft)
		}
	}
	return keys, false
}
