// Package keyword turns free text into the normalized token set the
// description-match supplier filter works with.
package keyword

import (
	"strconv"
	"strings"

	"pedraum/textutil"
)

// Portuguese stop words excluded from extraction.
var stopWordsPT = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(
		"de a o que e do da em um para com nao uma os no se na por mais as dos como mas ao ele das tem seu sua ou " +
			"ser quando muito nos ja eu tambem so pelo pela ate isso ela entre depois sem mesmo aos ter seus quem nas " +
			"me esse eles voce essa num nem suas meu minha numa pelos elas qual lhe deles essas esses pelas este dele " +
			"tu te voces vos lhes meus minhas teu tua teus tuas nosso nossa nossos nossas dela delas esta estes estas " +
			"aquele aquela aqueles aquelas isto aquilo estou estamos estao sou somos sao era eram fui foi fomos foram " +
			"tinha tinham tive teve") {
		stopWordsPT[w] = struct{}{}
	}
}

const punctuation = ".,/#!$%^&*;:{}=-_`~()"

// Extract normalizes text (diacritics stripped, lowercased, punctuation
// removed, whitespace collapsed) and returns the tokens longer than two
// characters that are neither pure numbers nor stop words. First-occurrence
// order is preserved and tokens are not deduplicated, matching the behavior
// the description filter was written against.
func Extract(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	normalized := strings.ToLower(textutil.StripDiacritics(text))
	normalized = strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, normalized)

	var out []string
	for _, word := range strings.Fields(normalized) {
		if len(word) <= 2 {
			continue
		}
		if _, err := strconv.ParseFloat(word, 64); err == nil {
			continue
		}
		if _, stop := stopWordsPT[word]; stop {
			continue
		}
		out = append(out, word)
	}
	return out
}
