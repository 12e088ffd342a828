// Package scorer computes relevance scores for retrieved candidates.
//
// Each enabled field is scored with the first applicable strategy in the
// order exact, prefix, substring, fuzzy. Multi-token queries also get a
// token-overlap score, and the field keeps the larger of the two. Field
// scores are multiplied by the field weight and the candidate's score is the
// maximum over fields, never the sum. A flat bonus is added when any field
// equals the query and the result is capped at MaxScore.
//
// Scoring is pure CPU work with no error path; candidates reaching the scorer
// have already been validated by the retriever.
package scorer
