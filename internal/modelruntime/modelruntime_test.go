package modelruntime

import "testing"

func TestComposeEmbeddingInput_Short(t *testing.T) {
	got := ComposeEmbeddingInput("hello", "world")
	want := "hello\n\nworld"
	if got != want {
		t.Errorf("ComposeEmbeddingInput = %q, want %q", got, want)
	}
}

func TestComposeEmbeddingInput_TruncatesBody(t *testing.T) {
	body := make([]byte, 2000)
	for i := range body {
		body[i] = 'x'
	}
	got := ComposeEmbeddingInput("subj", string(body))
	if len(got) != len("subj\n\n")+1000 {
		t.Errorf("ComposeEmbeddingInput length = %d, want %d", len(got), len("subj\n\n")+1000)
	}
}
