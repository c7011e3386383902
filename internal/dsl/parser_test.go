package dsl

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const couponDSL = `
# промо-экраны
module promo

screen Coupon: path=/coupon key=COUPON_ID readonly_when=STATUS:FINISHED
  TITLE: input required span=12 label=coupon.title
  STATUS: select[READY, ACTIVE, FINISHED] required
  PRIZES: options label="coupon.prizes" rows_path=/coupon/prize
    RANK: inputnumber required min=1
    NAME_EN: input required
  MEMO: editor hidden_when=STATUS:FINISHED # комментарий

screen Category: path=/category
  NAME_EN: input required
`

func TestParseScreens(t *testing.T) {
	screens, err := ParseScreens(strings.NewReader(couponDSL))
	require.NoError(t, err)
	require.Len(t, screens, 2)

	coupon := screens[0]
	assert.Equal(t, "promo.Coupon", coupon.FQN())
	assert.Equal(t, "/coupon", coupon.Options["path"])
	assert.Equal(t, "COUPON_ID", coupon.Options["key"])
	assert.Equal(t, "STATUS:FINISHED", coupon.Options["readonly_when"])

	require.Len(t, coupon.Fields, 4)
	title := coupon.Fields[0]
	assert.Equal(t, "input", title.Type)
	assert.True(t, title.Flag("required"))
	assert.Equal(t, "12", title.Options["span"])

	status := coupon.Fields[1]
	assert.Equal(t, "select", status.Type)
	assert.Equal(t, []string{"READY", "ACTIVE", "FINISHED"}, status.Enum)

	prizes := coupon.Fields[2]
	assert.Equal(t, "options", prizes.Type)
	assert.Equal(t, "coupon.prizes", prizes.Options["label"])
	require.Len(t, prizes.Children, 2)
	assert.Equal(t, "RANK", prizes.Children[0].Name)
	assert.Equal(t, "inputnumber", prizes.Children[0].Type)
	assert.Equal(t, "NAME_EN", prizes.Children[1].Name)

	memo := coupon.Fields[3]
	assert.Equal(t, "editor", memo.Type)
	assert.Equal(t, "STATUS:FINISHED", memo.Options["hidden_when"])
	_, hasComment := memo.Options["#"]
	assert.False(t, hasComment)

	assert.Equal(t, "promo.Category", screens[1].FQN())
	require.Len(t, screens[1].Fields, 1)
}

func TestParseScreens_NestedUnderNonOptions(t *testing.T) {
	_, err := ParseScreens(strings.NewReader(`
module cms
screen Company:
  NAME: input
    CHILD: input
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-options")
}

func TestParseScreens_NestedOptions(t *testing.T) {
	screens, err := ParseScreens(strings.NewReader(`
module vote
screen Vote:
  ITEMS: options
    LABEL: input
    LOCALES: options
      LANG: select[ko,en]
      TEXT: input
    ORDER: inputnumber
  TITLE: input
`))
	require.NoError(t, err)
	fields := screens[0].Fields
	require.Len(t, fields, 2)
	items := fields[0]
	require.Len(t, items.Children, 3)
	assert.Len(t, items.Children[1].Children, 2)
	assert.Equal(t, "ORDER", items.Children[2].Name)
	assert.Equal(t, "TITLE", fields[1].Name)
}

func TestLoadAllScreens(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "promo.dsl"), []byte(couponDSL), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	all, err := LoadAllScreens(dir)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Contains(t, all, "promo.Coupon")
	assert.Equal(t, filepath.Join(dir, "promo.dsl"), all["promo.Coupon"].File)
}

func TestLoadAllScreens_Errors(t *testing.T) {
	t.Run("no module", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.dsl"), []byte("screen A:\n  X: input\n"), 0o644))
		_, err := LoadAllScreens(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no module")
	})

	t.Run("duplicate", func(t *testing.T) {
		dir := t.TempDir()
		body := []byte("module m\nscreen A:\n  X: input\n")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.dsl"), body, 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "b.dsl"), body, 0o644))
		_, err := LoadAllScreens(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate screen")
	})
}

func TestSplitOptionTokens(t *testing.T) {
	got := splitOptionTokens(`label='Coupon title' pattern=^[A-Z _]+$ required`)
	assert.Equal(t, []string{`label='Coupon title'`, `pattern=^[A-Z _]+$`, "required"}, got)
}
