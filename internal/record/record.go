// Package record formats log file contents: the fixed header, bounded CSV
// record lines, and random 8.3 filenames.
package record

import (
	"math/rand/v2"
	"strconv"
)

// Header is the first line of every log file.
const Header = "Timestamp,Counter,Value\n"

// MaxLineLen bounds a single formatted record line.
const MaxLineLen = 64

const filenameCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// FormatLine writes "<timestamp>,count,<counter>\n" into buf and returns
// the number of bytes written. Output never exceeds len(buf); a too-small
// buffer yields a truncated line.
func FormatLine(buf []byte, timestamp, counter uint64) int {
	var scratch [MaxLineLen]byte
	line := strconv.AppendUint(scratch[:0], timestamp, 10)
	line = append(line, ",count,"...)
	line = strconv.AppendUint(line, counter, 10)
	line = append(line, '\n')
	return copy(buf, line)
}

// RandomFilename returns a random 8.3 name like "ABC12345.CSV". Eight
// characters plus a three-character extension is the filename limit of the
// peripheral's filesystem.
func RandomFilename() string {
	var name [12]byte
	for i := 0; i < 8; i++ {
		name[i] = filenameCharset[rand.IntN(len(filenameCharset))]
	}
	copy(name[8:], ".CSV")
	return string(name[:])
}
