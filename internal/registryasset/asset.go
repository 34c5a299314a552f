// Package registryasset declares the rich, human-facing outputs a task
// may upload to the registry after a successful run - a plot, a
// markdown report, a small JSON summary - distinct from the task's
// real Output() target. See internal/registry for the upload client.
package registryasset

// Kind distinguishes the asset's rendering in the registry UI. The
// engine itself treats both the same way; Kind is metadata consumed by
// whatever reads the registry's event log.
type Kind string

const (
	KindMarkdown Kind = "markdown"
	KindJSON     Kind = "json"
)

// Asset is one rich output attached to a task after a successful run.
// Uploads are idempotent keyed by (task, Kind, Name): re-uploading the
// same (Kind, Name) pair replaces the previous content rather than
// duplicating it.
type Asset struct {
	Kind    Kind
	Name    string
	Content []byte
}

// Markdown builds a markdown asset.
func Markdown(name, content string) Asset {
	return Asset{Kind: KindMarkdown, Name: name, Content: []byte(content)}
}

// JSON builds a JSON asset from already-encoded bytes.
func JSON(name string, content []byte) Asset {
	return Asset{Kind: KindJSON, Name: name, Content: content}
}
