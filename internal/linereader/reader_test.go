package linereader

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadLine_Vectors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		size    int
		want    []byte
		wantErr error
	}{
		{"exact fit", []byte{0x79, 0x78, 0x76, '\r', '\n'}, 3, []byte{0x79, 0x78, 0x76}, nil},
		{"trailing bare CR", []byte{0x75, 0x74, '\r'}, 3, []byte{0x75, 0x74, ' '}, nil},
		{"bare LF kept", []byte{0x75, '\n', '\r'}, 3, []byte{0x75, '\n', ' '}, nil},
		{"overflow at EOF", []byte{0x72, 0x71, 0x70}, 2, nil, ErrCannotContain},
		{"overflow before CRLF", []byte{0x72, 0x71, 0x70, '\r', '\n'}, 2, nil, ErrCannotContain},
		{"inner bare CR", []byte{0x69, '\r', 0x67}, 3, []byte{0x69, ' ', 0x67}, nil},
		{"one byte buffer", []byte{'x', '\r', '\n'}, 1, []byte{'x'}, nil},
		{"empty line", []byte{'\r', '\n'}, 4, []byte{}, nil},
		{"CR CR LF", []byte{'a', '\r', '\r', '\n'}, 2, []byte{'a', ' '}, nil},
		{"CR fills buffer then non-LF", []byte{'a', 'b', '\r', 'c'}, 2, nil, ErrCannotContain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(bytes.NewReader(tt.input))
			buf := make([]byte, tt.size)
			n, err := r.ReadLine(buf)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ReadLine() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadLine() error = %v", err)
			}
			if !bytes.Equal(buf[:n], tt.want) {
				t.Errorf("ReadLine() = %q, want %q", buf[:n], tt.want)
			}
		})
	}
}

func TestReadLine_EOF(t *testing.T) {
	r := New(strings.NewReader(""))
	n, err := r.ReadLine(make([]byte, 8))
	if n != 0 || err != io.EOF {
		t.Errorf("ReadLine() = %d, %v, want 0, EOF", n, err)
	}
}

func TestReadLine_Consecutive(t *testing.T) {
	r := New(strings.NewReader("GET / HTTP/1.1\r\nHost: a\r\n\r\nrest"))
	buf := make([]byte, 64)
	var lines []string
	for i := 0; i < 3; i++ {
		n, err := r.ReadLine(buf)
		if err != nil {
			t.Fatalf("ReadLine() error = %v", err)
		}
		lines = append(lines, string(buf[:n]))
	}
	want := []string{"GET / HTTP/1.1", "Host: a", ""}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
	rest, _ := io.ReadAll(r)
	if string(rest) != "rest" {
		t.Errorf("remaining = %q, want rest", rest)
	}
}

func TestMarkReset(t *testing.T) {
	r := New(strings.NewReader("abc\r\ndef"))
	if c, _ := r.ReadByte(); c != 'a' {
		t.Fatalf("ReadByte() = %q, want a", c)
	}
	r.Mark()
	buf := make([]byte, 8)
	n, err := r.ReadLine(buf)
	if err != nil || string(buf[:n]) != "bc" {
		t.Fatalf("ReadLine() = %q, %v", buf[:n], err)
	}
	if err := r.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	all, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(all) != "bc\r\ndef" {
		t.Errorf("after Reset = %q, want %q", all, "bc\r\ndef")
	}
}

func TestMarkReset_Nested(t *testing.T) {
	r := New(strings.NewReader("0123456789"))
	r.Mark()
	b := make([]byte, 4)
	if _, err := io.ReadFull(r, b); err != nil {
		t.Fatal(err)
	}
	if err := r.Reset(); err != nil {
		t.Fatal(err)
	}
	// Read two replayed bytes under a new mark, then reset again.
	r.Mark()
	if _, err := io.ReadFull(r, b[:2]); err != nil {
		t.Fatal(err)
	}
	if err := r.Reset(); err != nil {
		t.Fatal(err)
	}
	all, _ := io.ReadAll(r)
	if string(all) != "0123456789" {
		t.Errorf("after nested Reset = %q", all)
	}
}

func TestReset_WithoutMark(t *testing.T) {
	r := New(strings.NewReader("x"))
	if err := r.Reset(); !errors.Is(err, ErrNotMarked) {
		t.Errorf("Reset() error = %v, want ErrNotMarked", err)
	}
}

func TestLimit(t *testing.T) {
	r := New(strings.NewReader("abcdef"))
	r.EnableLimit(3)
	b := make([]byte, 3)
	if _, err := io.ReadFull(r, b); err != nil {
		t.Fatalf("ReadFull() within budget error = %v", err)
	}
	if _, err := r.ReadByte(); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("ReadByte() past budget error = %v, want ErrBudgetExceeded", err)
	}
	r.DisableLimit()
	if r.Limited() {
		t.Error("Limited() = true after DisableLimit")
	}
}

func TestLimit_ReadLine(t *testing.T) {
	r := New(strings.NewReader("aaaa\r\nbbbb\r\n\r\n"))
	r.EnableLimit(8)
	buf := make([]byte, 16)
	if _, err := r.ReadLine(buf); err != nil {
		t.Fatalf("first ReadLine() error = %v", err)
	}
	if _, err := r.ReadLine(buf); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("second ReadLine() error = %v, want ErrBudgetExceeded", err)
	}
}

func TestLimit_Misuse(t *testing.T) {
	t.Run("double enable", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("EnableLimit twice did not panic")
			}
		}()
		r := New(strings.NewReader(""))
		r.EnableLimit(1)
		r.EnableLimit(1)
	})
	t.Run("disable without enable", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("DisableLimit without EnableLimit did not panic")
			}
		}()
		New(strings.NewReader("")).DisableLimit()
	})
}

func TestRequireCRLF(t *testing.T) {
	tests := []struct {
		input   string
		wantErr error
	}{
		{"\r\n", nil},
		{"\n\r", ErrMissingCRLF},
		{"ab", ErrMissingCRLF},
		{"\r", io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		err := New(strings.NewReader(tt.input)).RequireCRLF()
		if !errors.Is(err, tt.wantErr) && err != tt.wantErr {
			t.Errorf("RequireCRLF(%q) error = %v, want %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestRecording(t *testing.T) {
	r := New(strings.NewReader("GET / HTTP/1.1\r\nbody"))
	r.StartRecording()
	if _, err := r.ReadLine(make([]byte, 32)); err != nil {
		t.Fatal(err)
	}
	rec := r.StopRecording()
	if string(rec) != "GET / HTTP/1.1\r\n" {
		t.Errorf("StopRecording() = %q", rec)
	}
	rest, _ := io.ReadAll(r)
	if string(rest) != "body" {
		t.Errorf("remaining = %q, want body", rest)
	}
}

func TestNew_ReusesReader(t *testing.T) {
	r := New(strings.NewReader("x"))
	if New(r) != r {
		t.Error("New(*Reader) did not return the same reader")
	}
}
