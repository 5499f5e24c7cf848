// Package summarizer ranks sentences by normalized term frequency.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Frequency ranks sentences by word frequency with stopwords filtered. An
// optional focus string boosts sentences sharing its terms.
type Frequency struct {
	tokenPattern    *regexp.Regexp
	sentencePattern *regexp.Regexp
	stopwords       map[string]struct{}
}

func NewFrequency() *Frequency {
	return &Frequency{
		tokenPattern:    regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		sentencePattern: regexp.MustCompile(`(?U)[^.!?]+[.!?]`),
		stopwords:       defaultStopwords(),
	}
}

// Summarize returns the top maxSentences sentences joined in document order.
func (s *Frequency) Summarize(text string, maxSentences int) (string, error) {
	return strings.Join(s.Select(text, "", maxSentences), " "), nil
}

// Select returns up to max sentences of text in their original order.
func (s *Frequency) Select(text, focus string, max int) []string {
	if max <= 0 {
		max = 5
	}
	sentences := s.Sentences(text)
	if len(sentences) == 0 {
		return nil
	}

	freq := map[string]float64{}
	tokens := make([][]string, len(sentences))
	for i, sent := range sentences {
		tokens[i] = s.tokens(sent)
		for _, tok := range tokens[i] {
			if _, ok := s.stopwords[tok]; ok {
				continue
			}
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	focusSet := s.termSet(focus)

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i := range sentences {
		score := 0.0
		hits := map[string]struct{}{}
		for _, tok := range tokens[i] {
			score += freq[tok]
			if _, ok := focusSet[tok]; ok {
				hits[tok] = struct{}{}
			}
		}
		if l := float64(len(tokens[i])); l > 0 {
			score /= math.Sqrt(l)
		}
		if len(focusSet) > 0 {
			score *= 1 + 2*float64(len(hits))/float64(len(focusSet))
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if max > len(scores) {
		max = len(scores)
	}
	selected := make([]int, max)
	for i := 0; i < max; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, max)
	for _, idx := range selected {
		out = append(out, sentences[idx])
	}
	return out
}

// Sentences splits text line by line into trimmed sentences. A line tail
// without terminal punctuation counts as a sentence, so slide bullets are
// kept.
func (s *Frequency) Sentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		end := 0
		for _, loc := range s.sentencePattern.FindAllStringIndex(line, -1) {
			if sent := strings.TrimSpace(line[loc[0]:loc[1]]); sent != "" {
				out = append(out, sent)
			}
			end = loc[1]
		}
		if rest := strings.TrimSpace(line[end:]); rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

// Overlap counts the distinct non-stopword terms a and b share.
func (s *Frequency) Overlap(a, b string) int {
	as := s.termSet(a)
	n := 0
	for t := range s.termSet(b) {
		if _, ok := as[t]; ok {
			n++
		}
	}
	return n
}

func (s *Frequency) termSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range s.tokens(text) {
		if _, ok := s.stopwords[tok]; ok {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

func (s *Frequency) tokens(text string) []string {
	return s.tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "why", "when", "where", "do", "does", "did", "explain", "describe",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
