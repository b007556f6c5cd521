package registry

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindRoot(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "LIACARA")
	deep := filepath.Join(root, "Rag_Vault", "articles", "DOC_paper_01")
	writeFile(t, filepath.Join(deep, "DOC_paper_01.md"), "# hi")

	t.Run("child of an ancestor", func(t *testing.T) {
		sibling := filepath.Join(base, "tools", "bin")
		writeFile(t, filepath.Join(sibling, "keep"), "")

		got, err := FindRoot(sibling, "")
		require.NoError(t, err)
		assert.Equal(t, root, got)
	})

	t.Run("inside the root", func(t *testing.T) {
		got, err := FindRoot(deep, "LIACARA")
		require.NoError(t, err)
		assert.Equal(t, root, got)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := FindRoot(base, "NO_SUCH_VAULT_ROOT_NAME")
		assert.True(t, errors.Is(err, ErrRootNotFound))
	})
}

func TestLayout(t *testing.T) {
	l := Layout{Root: "/v"}
	assert.Equal(t, filepath.Join("/v", "Rag_Vault", "articles"), l.ArticlesDir())
	assert.Equal(t, filepath.Join("/v", "Rag_Vault", "registry", "document_master_list.csv"), l.DocumentRegistry())
	assert.Equal(t, filepath.Join("/v", "Media_Vault", "images"), l.ImagesDir())
	assert.Equal(t, filepath.Join("/v", "Media_Vault", "registry", "media_registry.csv"), l.MediaRegistry())
}

func TestSHA256File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	writeFile(t, path, "abc")

	sum, err := SHA256File(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
}

func TestDocIDFromPath(t *testing.T) {
	assert.Equal(t, "DOC_paper_01", DocIDFromPath("/a/b/DOC_paper_01.md"))
	assert.Equal(t, "DOC_paper_01_chunks.jsonl", ChunkFileName("DOC_paper_01"))
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.PNG", "a.jpg", "nested/c.webp", "notes.txt", "d.tiff"} {
		writeFile(t, filepath.Join(dir, name), "x")
	}

	images, err := ListImages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.PNG"),
		filepath.Join(dir, "d.tiff"),
		filepath.Join(dir, "nested", "c.webp"),
	}, images)

	images, err = ListImages(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestListMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "DOC_paper_02", "DOC_paper_02.md"), "two")
	writeFile(t, filepath.Join(dir, "DOC_paper_01", "DOC_paper_01.md"), "one")
	writeFile(t, filepath.Join(dir, "misc", "readme.md"), "skip")

	files, err := ListMarkdown(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "DOC_paper_01", "DOC_paper_01.md"),
		filepath.Join(dir, "DOC_paper_02", "DOC_paper_02.md"),
	}, files)
}

func TestWalkChunkFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "DOC_paper_02", "DOC_paper_02_chunks.jsonl"),
		`{"chunk_id":"CHUNK_02_0001","text":"second","page":3}`+"\n")
	writeFile(t, filepath.Join(dir, "DOC_paper_01", "DOC_paper_01_chunks.jsonl"),
		`{"chunk_id":"CHUNK_01_0001","text":"first"}`+"\n\n"+
			`{not json}`+"\n"+
			`{"chunk_id":"CHUNK_01_0002","text":"again"}`)
	writeFile(t, filepath.Join(dir, "DOC_paper_03", "unrelated.jsonl"), `{"chunk_id":"x"}`)

	var ids []string
	skipped, err := WalkChunkFiles(dir, func(row ChunkRow) error {
		ids = append(ids, row["chunk_id"].(string))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, []string{"CHUNK_01_0001", "CHUNK_01_0002", "CHUNK_02_0001"}, ids)
}

func TestWalkChunkFiles_CallbackError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "DOC_paper_01", "DOC_paper_01_chunks.jsonl"), `{"chunk_id":"a"}`+"\n")

	boom := errors.New("boom")
	_, err := WalkChunkFiles(dir, func(ChunkRow) error { return boom })
	assert.ErrorIs(t, err, boom)
}
