package services

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/inkwell/models"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestUploadImageRecordsDimensions(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)

	m, err := env.svc.Media.Upload(env.ctx, author, UploadInput{
		FileName: "holiday photo.jpg",
		AltText:  "<b>beach</b>",
		Body:     bytes.NewReader(pngBytes(t, 4, 3)),
	})
	require.NoError(t, err)
	assert.Equal(t, models.MediaImage, m.Type)
	assert.Equal(t, "image/png", m.MimeType)
	assert.True(t, strings.HasSuffix(m.Path, ".png"))
	assert.Equal(t, "holiday photo", m.Name)
	assert.Equal(t, "beach", m.AltText)
	assert.JSONEq(t, `{"width":4,"height":3}`, string(m.Metadata))
	assert.True(t, strings.HasPrefix(m.URL, "/static/uploads/"))

	full, err := env.svc.Media.storage.(*LocalStorage).full(m.Path)
	require.NoError(t, err)
	_, err = os.Stat(full)
	require.NoError(t, err)
}

func TestUploadRejectsUnknownTypes(t *testing.T) {
	env := newTestEnv(t)
	author := env.user(t, RoleAuthor)
	sub := env.user(t, RoleSubscriber)

	_, err := env.svc.Media.Upload(env.ctx, sub, UploadInput{FileName: "a.txt", Body: strings.NewReader("hello")})
	requireKind(t, KindForbidden, err)
	_, err = env.svc.Media.Upload(env.ctx, author, UploadInput{FileName: "blob.bin", Body: bytes.NewReader([]byte{0x00, 0x01, 0x02, 0xfe, 0xff, 0x00, 0x13})})
	requireKind(t, KindValidation, err)
	_, err = env.svc.Media.Upload(env.ctx, author, UploadInput{FileName: "empty.txt", Body: strings.NewReader("")})
	requireKind(t, KindValidation, err)
	for name, body := range map[string]string{
		"cat.svg":   `<svg xmlns="http://www.w3.org/2000/svg"><script>alert(document.cookie)</script></svg>`,
		"page.html": `<!DOCTYPE html><html><body><script>alert(1)</script></body></html>`,
	} {
		_, err = env.svc.Media.Upload(env.ctx, author, UploadInput{FileName: name, Body: strings.NewReader(body)})
		requireKind(t, KindValidation, err)
	}
	var stored int64
	env.db.Model(&models.Media{}).Count(&stored)
	assert.Zero(t, stored)

	doc, err := env.svc.Media.Upload(env.ctx, author, UploadInput{FileName: "notes.txt", Body: strings.NewReader("plain notes")})
	require.NoError(t, err)
	assert.Equal(t, models.MediaDocument, doc.Type)
}

func TestMediaOwnershipAndDelete(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, RoleAuthor)
	other := env.user(t, RoleAuthor)
	admin := env.user(t, RoleAdministrator)
	m, err := env.svc.Media.Upload(env.ctx, owner, UploadInput{FileName: "pic.png", Body: bytes.NewReader(pngBytes(t, 1, 1))})
	require.NoError(t, err)

	_, err = env.svc.Media.Update(env.ctx, other, m.ID, MediaUpdate{Caption: strPtr("mine now")})
	requireKind(t, KindForbidden, err)
	updated, err := env.svc.Media.Update(env.ctx, owner, m.ID, MediaUpdate{Caption: strPtr("sunset")})
	require.NoError(t, err)
	assert.Equal(t, "sunset", updated.Caption)

	items, total, err := env.svc.Media.List(env.ctx, other, MediaFilter{Type: string(models.MediaImage)}, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, m.ID, items[0].ID)

	requireKind(t, KindForbidden, env.svc.Media.Delete(env.ctx, other, m.ID))
	require.NoError(t, env.svc.Media.Delete(env.ctx, admin, m.ID))

	full, err := env.svc.Media.storage.(*LocalStorage).full(m.Path)
	require.NoError(t, err)
	_, err = os.Stat(full)
	assert.True(t, os.IsNotExist(err))
	_, err = env.svc.Media.Get(env.ctx, admin, m.ID)
	requireKind(t, KindNotFound, err)
}
