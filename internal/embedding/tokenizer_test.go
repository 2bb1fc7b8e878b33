package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("hello world", 10)
	assert.Len(t, ids, 10)
	assert.Len(t, types, 10)
	assert.Equal(t, int64(tokenCLS), ids[0])
	assert.Equal(t, int64(tokenSEP), ids[3])
	assert.Equal(t, []int64{1, 1, 1, 1, 0, 0, 0, 0, 0, 0}, attn)

	upper, _, _ := tok.Tokenize("HELLO World", 10)
	assert.Equal(t, ids, upper)
}

func TestSimpleTokenizer_Truncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("a b c d e f g h", 4)
	assert.Len(t, ids, 4)
	assert.Equal(t, []int64{1, 1, 1, 1}, attn)
	assert.Equal(t, int64(tokenSEP), ids[3])
}

func TestSplitWords(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitWords("  a \n b\tc  "))
	assert.Nil(t, SplitWords(""))
	assert.Nil(t, SplitWords("   "))
}

func TestHashString(t *testing.T) {
	assert.NotZero(t, HashString("abc"))
	assert.Equal(t, HashString("abc"), HashString("abc"))
	assert.NotEqual(t, HashString("abc"), HashString("abd"))
	long := ""
	for i := 0; i < 200; i++ {
		long += "zz"
	}
	assert.GreaterOrEqual(t, HashString(long), 0)
}
