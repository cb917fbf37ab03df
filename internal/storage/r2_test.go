package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFromRef(t *testing.T) {
	s := &Store{cfg: Config{PublicBaseURL: "https://cdn.example.com"}}

	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr bool
	}{
		{"bare key", "uploads/abc.jpg", "uploads/abc.jpg", false},
		{"public url", "https://cdn.example.com/uploads/abc.jpg", "uploads/abc.jpg", false},
		{"other host url", "https://other.example.com/uploads/abc.jpg", "uploads/abc.jpg", false},
		{"url without key", "https://cdn.example.com/", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.keyFromRef(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPresignUpload_RejectsUnsupportedContentType(t *testing.T) {
	s := &Store{}

	_, err := s.PresignUpload(context.Background(), "doc.pdf", "application/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedContentType)
}

func TestPut_RejectsUnsupportedContentType(t *testing.T) {
	s := &Store{}

	_, err := s.Put(context.Background(), "uploads/x.gif", []byte("data"), "image/gif")
	assert.ErrorIs(t, err, ErrUnsupportedContentType)
}
