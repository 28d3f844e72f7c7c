package integrity

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"strings"
	"sync"
	"time"
)

// crockford is Crockford's base32 alphabet: no I, L, O or U.
const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const idLength = 26

// ID is a verification identifier: a 48-bit millisecond timestamp followed by
// 80 random bits, printed as 26 Crockford base32 characters. IDs sort by
// creation time both as bytes and as text.
type ID [16]byte

// Generator mints IDs that increase strictly, also within one millisecond
// and across a clock that steps backwards.
type Generator struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy io.Reader
	lastMS  uint64
	last    [10]byte
}

func NewGenerator() *Generator {
	return &Generator{now: time.Now, entropy: rand.Reader}
}

// NewGeneratorWith is for tests that need a fixed clock or entropy.
func NewGeneratorWith(now func() time.Time, entropy io.Reader) *Generator {
	return &Generator{now: now, entropy: entropy}
}

func (g *Generator) New() (ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := uint64(g.now().UnixMilli())
	if ms <= g.lastMS {
		ms = g.lastMS
		if !increment(g.last[:]) {
			ms++
			if _, err := io.ReadFull(g.entropy, g.last[:]); err != nil {
				return ID{}, err
			}
		}
	} else if _, err := io.ReadFull(g.entropy, g.last[:]); err != nil {
		return ID{}, err
	}
	g.lastMS = ms

	var id ID
	id[0] = byte(ms >> 40)
	id[1] = byte(ms >> 32)
	id[2] = byte(ms >> 24)
	id[3] = byte(ms >> 16)
	id[4] = byte(ms >> 8)
	id[5] = byte(ms)
	copy(id[6:], g.last[:])
	return id, nil
}

// increment adds one to a big-endian counter, reporting false on overflow.
func increment(b []byte) bool {
	for i := len(b) - 1; i >= 0; i-- {
		b[i]++
		if b[i] != 0 {
			return true
		}
	}
	return false
}

func (id ID) IsZero() bool {
	return id == ID{}
}

// Time is the creation instant encoded in the ID.
func (id ID) Time() time.Time {
	var ms [8]byte
	copy(ms[2:], id[:6])
	return time.UnixMilli(int64(binary.BigEndian.Uint64(ms[:]))).UTC()
}

func (id ID) String() string {
	var out [idLength]byte
	for i := range out {
		var v byte
		for b := 0; b < 5; b++ {
			// two leading pad bits make 130 bits from 128
			pos := i*5 + b - 2
			v <<= 1
			if pos >= 0 && id[pos/8]&(0x80>>(pos%8)) != 0 {
				v |= 1
			}
		}
		out[i] = crockford[v]
	}
	return string(out[:])
}

// Display groups the ID for reading aloud: XXXXXX-XXXXXX-XXXXXX-XXXXXXXX.
func (id ID) Display() string {
	s := id.String()
	return s[0:6] + "-" + s[6:12] + "-" + s[12:18] + "-" + s[18:]
}

// ParseID accepts the canonical and display forms, lower case, and the
// usual transcription slips (I and L for 1, O for 0).
func ParseID(raw string) (ID, error) {
	var cleaned strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		switch r {
		case '-', ' ':
			continue
		case 'I', 'L':
			r = '1'
		case 'O':
			r = '0'
		}
		cleaned.WriteRune(r)
	}
	s := cleaned.String()
	if len(s) != idLength || s[0] > '7' {
		return ID{}, ErrInvalidID
	}
	var id ID
	for i := 0; i < idLength; i++ {
		v := strings.IndexByte(crockford, s[i])
		if v < 0 {
			return ID{}, ErrInvalidID
		}
		for b := 0; b < 5; b++ {
			pos := i*5 + b - 2
			if pos < 0 {
				continue
			}
			if v&(0x10>>b) != 0 {
				id[pos/8] |= 0x80 >> (pos % 8)
			}
		}
	}
	return id, nil
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
