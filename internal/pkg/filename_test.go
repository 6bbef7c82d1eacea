package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"photo.PNG", "photo.PNG"},
		{"My cool movie.mov", "My_cool_movie.mov"},
		{"../../../etc/passwd", "etc_passwd"},
		{"..\\windows\\system32.dll", "windows_system32.dll"},
		{".bashrc", "bashrc"},
		{"i contain cool ümläuts.txt", "i_contain_cool_mluts.txt"},
		{"???", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeFilename(tc.in), "input %q", tc.in)
	}
}

func TestSplitExt(t *testing.T) {
	assert.Equal(t, "PNG", SplitExt("photo.PNG"))
	assert.Equal(t, "gz", SplitExt("archive.tar.gz"))
	assert.Equal(t, "", SplitExt("README"))
	assert.Equal(t, "", SplitExt("trailing."))
}
