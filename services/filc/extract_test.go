package filc

import (
	"testing"
)

func TestExtractResponseTextOutputsTree(t *testing.T) {
	payload := []byte(`{
		"outputs": [
			{"outputs": [
				{"results": {"message": {"text": "Hello from the tree"}}}
			]}
		]
	}`)

	got := ExtractResponseText(payload)
	if got != "Hello from the tree" {
		t.Errorf("expected tree text, got %q", got)
	}
}

func TestExtractResponseTextResultMessage(t *testing.T) {
	payload := []byte(`{"result": {"message": {"text": "Nested result"}}}`)

	got := ExtractResponseText(payload)
	if got != "Nested result" {
		t.Errorf("expected nested result text, got %q", got)
	}
}

func TestExtractResponseTextResultString(t *testing.T) {
	payload := []byte(`{"result": "Plain result string"}`)

	got := ExtractResponseText(payload)
	if got != "Plain result string" {
		t.Errorf("expected result string, got %q", got)
	}
}

func TestExtractResponseTextOutputString(t *testing.T) {
	payload := []byte(`{"output": "Output field value"}`)

	got := ExtractResponseText(payload)
	if got != "Output field value" {
		t.Errorf("expected output string, got %q", got)
	}
}

func TestExtractResponseTextParserOrder(t *testing.T) {
	// When multiple envelope shapes are present the most specific wins.
	payload := []byte(`{
		"output": "from output",
		"result": {"message": {"text": "from result"}},
		"outputs": [{"outputs": [{"results": {"message": {"text": "from tree"}}}]}]
	}`)

	got := ExtractResponseText(payload)
	if got != "from tree" {
		t.Errorf("expected most specific parser to win, got %q", got)
	}
}

func TestExtractResponseTextRawText(t *testing.T) {
	got := ExtractResponseText([]byte("just plain text"))
	if got != "just plain text" {
		t.Errorf("expected raw text passthrough, got %q", got)
	}
}

func TestExtractResponseTextBareJSONString(t *testing.T) {
	got := ExtractResponseText([]byte(`"a quoted reply"`))
	if got != "a quoted reply" {
		t.Errorf("expected unquoted reply, got %q", got)
	}
}

func TestExtractResponseTextFallback(t *testing.T) {
	cases := [][]byte{
		[]byte(`{}`),
		[]byte(`{"unrelated": 42}`),
		[]byte(`{"outputs": []}`),
		[]byte(``),
	}
	for _, payload := range cases {
		if got := ExtractResponseText(payload); got != NoResponseFallback {
			t.Errorf("payload %s: expected fallback, got %q", payload, got)
		}
	}
}
