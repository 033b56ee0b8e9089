package mbox

import (
	"bytes"
	"testing"
)

func buildFile(messages ...string) string {
	var b bytes.Buffer
	for i, m := range messages {
		b.WriteString("From sender")
		b.WriteString(itoa(i))
		b.WriteString("@example.com Mon Jan  1 00:00:00 2024\n")
		b.WriteString(m)
	}
	return b.String()
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}
	return digits
}

func collectAllPartitions(t *testing.T, file string, cutPoints []int) []string {
	t.Helper()
	var chunks [][]byte
	prev := 0
	data := []byte(file)
	for _, cut := range cutPoints {
		chunks = append(chunks, data[prev:cut])
		prev = cut
	}
	chunks = append(chunks, data[prev:])

	var carryover []byte
	var bodies []string
	for i, chunk := range chunks {
		buf := append(append([]byte{}, carryover...), chunk...)
		isLast := i == len(chunks)-1
		msgs, co := Split(buf, isLast)
		for _, m := range msgs {
			bodies = append(bodies, string(m.Body()))
		}
		carryover = co
	}
	return bodies
}

func TestSplit_ChunkingInvariance(t *testing.T) {
	file := buildFile("Subject: one\n\nbody one\n", "Subject: two\n\nbody two\n", "Subject: three\n\nbody three\n")

	partitions := [][]int{
		{},
		{len(file) / 2},
		{10, 20, 30, 40, 50},
		{len(file) - 5},
	}

	var baseline []string
	for i, cuts := range partitions {
		got := collectAllPartitions(t, file, cuts)
		if i == 0 {
			baseline = got
			continue
		}
		if len(got) != len(baseline) {
			t.Fatalf("partition %v: got %d messages, want %d", cuts, len(got), len(baseline))
		}
		for j := range got {
			if got[j] != baseline[j] {
				t.Errorf("partition %v: message %d differs:\ngot:  %q\nwant: %q", cuts, j, got[j], baseline[j])
			}
		}
	}
}

func TestSplit_EnvelopeSplitAcrossChunks(t *testing.T) {
	msg1 := "From a@b Mon Jan  1 00:00:00 2024\nSubject: m1\n\nbody1\n"
	msg2 := "From c@d Mon Jan  1 00:00:00 2024\nSubject: m2\n\nbody2\n"
	file := msg1 + msg2

	splitPoint := len(msg1) + 4 // lands inside msg2's envelope line

	chunk0 := []byte(file[:splitPoint])
	chunk1 := []byte(file[splitPoint:])

	msgs0, carry := Split(chunk0, false)
	if len(msgs0) != 1 {
		t.Fatalf("chunk 0: got %d messages, want 1", len(msgs0))
	}

	buf1 := append(append([]byte{}, carry...), chunk1...)
	msgs1, carry1 := Split(buf1, true)
	if carry1 != nil {
		t.Errorf("last chunk left carryover: %q", carry1)
	}
	if len(msgs1) != 1 {
		t.Fatalf("chunk 1: got %d messages, want 1", len(msgs1))
	}
	if string(msgs1[0].Body()) != "Subject: m2\n\nbody2\n" {
		t.Errorf("chunk 1 body = %q", msgs1[0].Body())
	}
}

func TestSplit_NoEnvelopeLastChunk(t *testing.T) {
	msgs, carry := Split([]byte("not an mbox file at all\n"), true)
	if len(msgs) != 0 || carry != nil {
		t.Errorf("expected no messages and no carryover, got %d messages, carry=%q", len(msgs), carry)
	}
}

func TestSplit_NoEnvelopeNonLastChunk(t *testing.T) {
	buf := []byte("partial text with no boundary yet")
	msgs, carry := Split(buf, false)
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
	if string(carry) != string(buf) {
		t.Errorf("expected full buffer as carryover, got %q", carry)
	}
}

func TestIsEnvelopeLine(t *testing.T) {
	cases := map[string]bool{
		"From a@b.com Mon Jan 1\n":        true,
		"From john Smith at work\n":       true,
		"From the meeting notes...\n":     false,
		"Fromage is cheese\n":             false,
		"From \n":                         false,
	}
	for line, want := range cases {
		if got := IsEnvelopeLine([]byte(line)); got != want {
			t.Errorf("IsEnvelopeLine(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestUnescapeFromLine(t *testing.T) {
	cases := map[string]string{
		">From trouble\n":  "From trouble\n",
		">>From nested\n":  ">From nested\n",
		">Quoted text\n":   ">Quoted text\n",
		"plain line\n":     "plain line\n",
	}
	for in, want := range cases {
		if got := string(UnescapeFromLine([]byte(in))); got != want {
			t.Errorf("UnescapeFromLine(%q) = %q, want %q", in, got, want)
		}
	}
}
