package media_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/media"
	"github.com/JakeFAU/inkpress/internal/media/memory"
)

type fixedIDs struct{}

func (fixedIDs) ObjectID() string { return "0001" }

type registrar struct {
	got []blog.Media
}

func (r *registrar) AddMedia(_ context.Context, m blog.Media) (blog.Media, error) {
	m.ID = int64(len(r.got) + 1)
	r.got = append(r.got, m)
	return m, nil
}

func TestUploaderStoresAndRegisters(t *testing.T) {
	t.Parallel()

	store := memory.New("http://blog.example/media")
	reg := &registrar{}
	up := media.NewUploader(store, reg, fixedIDs{}, 10)

	m, err := up.Upload(context.Background(), "default", "admin", `C:\photos\Été 2024.JPG`, "", []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "ete-2024.jpg", m.Name)
	assert.Equal(t, "default/0001-ete-2024.jpg", m.Path)
	assert.Equal(t, "http://blog.example/media/default/0001-ete-2024.jpg", m.URL)
	assert.Equal(t, "image/jpeg", m.ContentType)
	assert.Equal(t, int64(4), m.Size)

	data, _, ok := store.Get(m.Path)
	require.True(t, ok)
	assert.Equal(t, "jpeg", string(data))

	_, err = up.Upload(context.Background(), "default", "admin", "big.bin", "", make([]byte, 11))
	require.ErrorIs(t, err, media.ErrTooLarge)
	_, err = up.Upload(context.Background(), "default", "admin", "???", "", []byte("x"))
	require.ErrorIs(t, err, blog.ErrInvalid)
}

func TestCleanName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "report.pdf", media.CleanName("../../Report.PDF"))
	assert.Equal(t, "readme", media.CleanName("README"))
	assert.Equal(t, "", media.CleanName("/"))
}
