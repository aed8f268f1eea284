package translator

import "github.com/squall-chua/mongora"

// Translate compiles a MongoDB aggregation pipeline, given as its JSON
// array of stage documents, into a single Oracle SQL statement reading
// id/data rows from collection. This is the bridge's external entry
// point; it runs the whole pipeline parse -> per-stage compile (with
// fusion) -> emit.
func Translate(collection, pipelineJSON string, opts ...Option) (string, error) {
	settings := NewSettings(opts...)

	pipeline, err := mongora.Parse(pipelineJSON)
	if err != nil {
		return "", err
	}

	b := newBuilder(settings, collection)
	plan, err := b.Compile(pipeline)
	if err != nil {
		return "", err
	}
	return Emit(plan), nil
}

// TranslatePipeline is Translate's equivalent for a caller that already
// holds a parsed mongora.Pipeline, skipping the JSON round trip.
func TranslatePipeline(collection string, pipeline mongora.Pipeline, opts ...Option) (string, error) {
	settings := NewSettings(opts...)
	b := newBuilder(settings, collection)
	plan, err := b.Compile(pipeline)
	if err != nil {
		return "", err
	}
	return Emit(plan), nil
}

// Params returns the bind-variable values accumulated during a
// BindPlaceholders-mode translation, in ":1", ":2", ... order. Callers
// in BindInline mode get an empty slice since literals are rendered
// directly into the SQL text.
type TranslateResult struct {
	SQL    string
	Params []interface{}
}

// TranslateWithParams behaves like Translate but also returns the bound
// parameter values collected under WithBindMode(BindPlaceholders).
func TranslateWithParams(collection, pipelineJSON string, opts ...Option) (TranslateResult, error) {
	settings := NewSettings(opts...)

	pipeline, err := mongora.Parse(pipelineJSON)
	if err != nil {
		return TranslateResult{}, err
	}

	b := newBuilder(settings, collection)
	plan, err := b.Compile(pipeline)
	if err != nil {
		return TranslateResult{}, err
	}
	sql := Emit(plan)
	return TranslateResult{SQL: sql, Params: b.root.state.params}, nil
}
