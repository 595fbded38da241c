// Package prompts contains all LLM prompt templates used by Mafuyu.
//
// Keeping templates in one place makes prompt changes reviewable
// without touching agent logic. Functions here only interpolate; they
// never call the model.
package prompts
