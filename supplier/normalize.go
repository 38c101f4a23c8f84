package supplier

import (
	"pedraum/phone"
)

// bioKeys are the alternate profile fields that may carry the public
// description, in priority order.
var bioKeys = []string{
	"bio", "descricaoPublica", "sobre", "observacoesPublicas", "descricao", "about", "obsPublicas",
}

// Normalize merges a raw profile document into the canonical Supplier shape.
// Legacy profiles spell the same concept under several field names (four
// category shapes, four free-plan flags, two UF lists); this is the only
// place those alternates are consulted.
func Normalize(id string, raw map[string]any) Supplier {
	s := Supplier{
		ID:    id,
		Name:  firstString(raw, "nome", "name"),
		Email: firstString(raw, "email"),
		Phone: firstString(raw, "telefone", "phone"),
		City:  firstString(raw, "cidade"),
		State: firstString(raw, "estado", "state", "uf"),
		Bio:   firstString(raw, bioKeys...),
	}
	if id == "" {
		s.ID = firstString(raw, "id")
	}

	s.WhatsApp = phone.NormalizeBR(firstString(raw, "whatsappE164", "whatsapp", "telefone"))
	if s.WhatsApp != "" {
		s.WhatsAppMask = phone.Mask55(s.WhatsApp)
	}

	s.Sponsor = boolField(raw, "patrocinador")
	s.FreePlan = boolField(raw, "recebeGratisDemandas") ||
		boolField(raw, "freeDemandAccess") ||
		boolField(raw, "planoDemandasGratis") ||
		boolField(raw, "demandasGratis")
	s.ServesBrazil = boolField(raw, "atendeBrasil")

	s.Lines = normalizeLines(raw["atuacaoBasica"])
	s.Categories = mergedCategories(raw, s.Lines)
	s.UFs = derivedUFs(raw, s.ServesBrazil)
	s.Stats = derivedStats(raw)

	return s
}

func normalizeLines(v any) []LineOfBusiness {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []LineOfBusiness
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		line := LineOfBusiness{
			Category: firstString(m, "categoria"),
			Products: normalizeActivity(m["vendaProdutos"]),
			Parts:    normalizeActivity(m["vendaPecas"]),
			Services: normalizeActivity(m["servicos"]),
		}
		if line.Category == "" && !line.Products.Active && !line.Parts.Active && !line.Services.Active {
			continue
		}
		out = append(out, line)
	}
	return out
}

func normalizeActivity(v any) Activity {
	m, ok := v.(map[string]any)
	if !ok {
		return Activity{}
	}
	return Activity{
		Active: boolField(m, "ativo"),
		Notes:  firstString(m, "obs"),
	}
}

// mergedCategories gathers every category shape into one candidate list:
// plain arrays, the categoriesAll mirror, atuação pairs and the structured
// lines themselves.
func mergedCategories(raw map[string]any, lines []LineOfBusiness) []string {
	var out []string
	out = append(out, stringSlice(raw["categorias"])...)
	out = append(out, stringSlice(raw["categoriesAll"])...)
	if pairs, ok := raw["categoriasAtuacaoPairs"].([]any); ok {
		for _, p := range pairs {
			if m, ok := p.(map[string]any); ok {
				if c := firstString(m, "categoria"); c != "" {
					out = append(out, c)
				}
			}
		}
	}
	for _, l := range lines {
		if l.Category != "" {
			out = append(out, l.Category)
		}
	}
	return dedupeStrings(out)
}

// derivedUFs builds the served-UF set from explicit lists, address fields and
// free-text geographic strings.
func derivedUFs(raw map[string]any, servesBrazil bool) []string {
	set := make(map[string]struct{})
	add := func(val string) {
		if uf := ToUF(val); uf != "" {
			set[uf] = struct{}{}
		}
	}

	for _, v := range stringSlice(raw["ufs"]) {
		add(v)
	}
	for _, v := range stringSlice(raw["ufsAtendidas"]) {
		add(v)
	}

	endereco, _ := raw["endereco"].(map[string]any)
	add(firstString(raw, "estado"))
	add(firstString(raw, "state"))
	add(firstString(raw, "uf"))
	add(firstString(endereco, "uf"))
	add(firstString(endereco, "estado"))

	freeText := []string{
		firstString(raw, "cidade"),
		firstString(raw, "localizacao"),
		firstString(raw, "regioes"),
		firstString(raw, "regioesAtendidas"),
		firstString(endereco, "cidade"),
	}
	for _, txt := range freeText {
		for _, uf := range ExtractUFsFromText(txt) {
			set[uf] = struct{}{}
		}
	}

	if servesBrazil {
		set[NationwideUF] = struct{}{}
	}
	return sortedUFs(set)
}

// derivedStats resolves the demand counters across the nested stats object
// and the flat legacy fields.
func derivedStats(raw map[string]any) Stats {
	stats, ok := raw["demandStats"].(map[string]any)
	if !ok {
		stats, _ = raw["statsDemandas"].(map[string]any)
	}

	sent, ok := intField(stats, "enviadas")
	if !ok {
		sent, ok = intField(stats, "sent")
	}
	if !ok {
		sent, ok = intField(raw, "demandasEnviadas")
	}
	if !ok {
		sent, ok = intField(raw, "totalDemandasEnviadas")
	}
	if !ok {
		sent, _ = intField(raw, "totalDemandasRecebidas")
	}

	unlocked, ok := intField(stats, "desbloqueadas")
	if !ok {
		unlocked, ok = intField(stats, "unlocked")
	}
	if !ok {
		unlocked, _ = intField(raw, "demandasDesbloqueadas")
	}

	free, ok := intField(stats, "gratuitas")
	if !ok {
		free, ok = intField(stats, "free")
	}
	if !ok {
		free, _ = intField(raw, "demandasGratuitas")
	}

	return Stats{Sent: sent, Unlocked: unlocked, Free: free}
}
