package splitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_SimpleSentences(t *testing.T) {
	s := New(5)
	got := s.Split("This is the first sentence. This is the second sentence. And a third.")
	require.Len(t, got, 3)
	assert.Equal(t, "This is the first sentence.", got[0])
	assert.Equal(t, "This is the second sentence.", got[1])
	assert.Equal(t, "And a third.", got[2])
}

func TestSplit_ExclamationAndQuestion(t *testing.T) {
	s := New(5)
	got := s.Split("What is this? It is amazing! Really great.")
	require.Len(t, got, 3)
}

func TestSplit_PreservesInlineCode(t *testing.T) {
	s := New(5)
	got := s.Split("Use the `config.yaml` file. Then run `cargo build`.")
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "`config.yaml`")
	assert.Contains(t, got[1], "`cargo build`")
}

// S2 — Code block preservation.
func TestSplit_PreservesFencedCodeBlock(t *testing.T) {
	s := New(5)
	text := "Use the command. Then\n\n```rust\nfn main() { println!(\"x\"); }\n```\n\nDone."
	got := s.Split(text)
	combined := ""
	for _, sentence := range got {
		combined += sentence + " "
	}
	assert.Contains(t, combined, "```rust")
	assert.Contains(t, combined, "fn main()")

	fenceCount := 0
	for _, sentence := range got {
		if containsFence(sentence) {
			fenceCount++
		}
	}
	assert.Equal(t, 1, fenceCount, "fenced block must appear in exactly one sentence")
}

func containsFence(s string) bool {
	count := 0
	for i := 0; i+2 < len(s); i++ {
		if s[i] == '`' && s[i+1] == '`' && s[i+2] == '`' {
			count++
		}
	}
	return count > 0
}

// S3 — Abbreviation.
func TestSplit_Abbreviation(t *testing.T) {
	s := New(5)
	got := s.Split("Dr. Smith is here. He works for Inc. Corporation.")
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "Dr. Smith")
	assert.Contains(t, got[1], "Inc. Corporation")
}

// P4 — every curated abbreviation protects its boundary.
func TestSplit_AllAbbreviationsProtected(t *testing.T) {
	for _, abbr := range abbreviations {
		s := New(1)
		text := "Foo " + abbr + " bar. Baz."
		got := s.Split(text)
		require.Lenf(t, got, 2, "abbreviation %q should yield exactly two sentences", abbr)
		assert.Containsf(t, got[0], abbr, "sentence 1 should contain abbreviation %q intact", abbr)
	}
}

func TestSplit_FiltersShortFragments(t *testing.T) {
	s := New(15)
	got := s.Split("This is a long enough sentence. Hi. Another long sentence here.")
	require.Len(t, got, 2)
}

// P2 — empty sentence set.
func TestSplit_Empty(t *testing.T) {
	assert.Empty(t, New(10).Split(""))
}

func TestSplit_WhitespaceOnly(t *testing.T) {
	assert.Empty(t, New(10).Split("   \n\t  "))
}

func TestSplit_SingleSentence(t *testing.T) {
	got := New(5).Split("This is a single sentence.")
	require.Len(t, got, 1)
	assert.Equal(t, "This is a single sentence.", got[0])
}

func TestSplit_NoEndingPunctuation(t *testing.T) {
	got := New(5).Split("This is a sentence without ending punctuation")
	require.Len(t, got, 1)
}

func TestDefault(t *testing.T) {
	assert.Equal(t, defaultMinSentenceLength, Default().MinSentenceLength())
}

func TestSplit_MultipleCodeBlocks(t *testing.T) {
	got := New(5).Split("Use `var1` and `var2`. Then call `func()`.")
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "`var1`")
	assert.Contains(t, got[0], "`var2`")
	assert.Contains(t, got[1], "`func()`")
}

func TestSplit_OrderPreserved(t *testing.T) {
	got := New(1).Split("Alpha. Beta. Gamma.")
	require.Len(t, got, 3)
	assert.Equal(t, []string{"Alpha.", "Beta.", "Gamma."}, got)
}
