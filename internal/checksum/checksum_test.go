package checksum

import (
	"strings"
	"testing"
)

func TestSum(t *testing.T) {
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != empty {
		t.Errorf("Sum(nil) = %s", got)
	}
	got, n, err := SumReader(strings.NewReader(""))
	if err != nil || got != empty || n != 0 {
		t.Errorf("SumReader = %s, %d, %v", got, n, err)
	}
}

func TestSumJSONStable(t *testing.T) {
	a, _ := SumJSON(map[string]int{"b": 2, "a": 1})
	b, _ := SumJSON(map[string]int{"a": 1, "b": 2})
	if a != b {
		t.Error("map key order changed the digest")
	}
}

func TestShort(t *testing.T) {
	if Short("abc") != "abc" || len(Short(Sum([]byte("x")))) != 12 {
		t.Error("Short mismatch")
	}
}
