// Package scorer provides the built-in eval.Scorer implementations: exact
// and substring matching, edit distance, regular expressions, JSON and JSON
// schema checks, SQL syntax validation, embedding similarity and an LLM
// rubric judge.
package scorer
