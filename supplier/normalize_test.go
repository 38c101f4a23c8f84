package supplier

import (
	"reflect"
	"testing"
)

func TestNormalizeMergesAlternateFields(t *testing.T) {
	raw := map[string]any{
		"nome":     "Tratores Silva",
		"email":    "contato@silva.com",
		"telefone": "31 99999-0000",
		"cidade":   "Belo Horizonte",
		"estado":   "MG",
		"sobre":    "Revenda de máquinas pesadas",
		"categorias":    []any{"Tratores"},
		"categoriesAll": []any{"Tratores", "Escavadeiras"},
		"categoriasAtuacaoPairs": []any{
			map[string]any{"categoria": "Guindastes"},
		},
		"atuacaoBasica": []any{
			map[string]any{
				"categoria":     "Peças",
				"vendaProdutos": map[string]any{"ativo": true, "obs": "baterias e filtros"},
				"servicos":      map[string]any{"ativo": false},
			},
		},
		"recebeGratisDemandas": false,
		"planoDemandasGratis":  true,
	}

	s := Normalize("sup-1", raw)

	if s.ID != "sup-1" || s.Name != "Tratores Silva" {
		t.Fatalf("identity not normalized: %+v", s)
	}
	if s.Bio != "Revenda de máquinas pesadas" {
		t.Errorf("bio fallback key not honored: %q", s.Bio)
	}
	if s.WhatsApp != "5531999990000" {
		t.Errorf("whatsapp not normalized: %q", s.WhatsApp)
	}
	want := []string{"Tratores", "Escavadeiras", "Guindastes", "Peças"}
	if !reflect.DeepEqual(s.Categories, want) {
		t.Errorf("categories = %v, want %v", s.Categories, want)
	}
	if !s.FreePlan {
		t.Error("any free-plan flag true must derive FreePlan")
	}
	if s.Sponsor {
		t.Error("sponsor must not be derived from free-plan flags")
	}
	if !s.IsFreeDemand() {
		t.Error("free-plan supplier must be free demand")
	}
	if len(s.Lines) != 1 || !s.Lines[0].Products.Active || s.Lines[0].Products.Notes != "baterias e filtros" {
		t.Errorf("lines not normalized: %+v", s.Lines)
	}
}

func TestNormalizeSponsorIsAlwaysFree(t *testing.T) {
	s := Normalize("sup-2", map[string]any{"patrocinador": true})
	if !s.Sponsor || !s.IsFreeDemand() {
		t.Fatalf("sponsor must be free demand: %+v", s)
	}
	if s.FreePlan {
		t.Error("sponsor flag alone must not set FreePlan")
	}
}

func TestNormalizeUFsFromEveryShape(t *testing.T) {
	raw := map[string]any{
		"ufsAtendidas": []any{"sp"},
		"regioes":      "Atende RJ e Espírito Santo? não; só RJ",
		"endereco":     map[string]any{"uf": "MG"},
	}
	s := Normalize("sup-3", raw)
	want := []string{"MG", "RJ", "SP"}
	if !reflect.DeepEqual(s.UFs, want) {
		t.Fatalf("UFs = %v, want %v", s.UFs, want)
	}
}

func TestNormalizeStatsAlternates(t *testing.T) {
	s := Normalize("a", map[string]any{
		"statsDemandas":         map[string]any{"desbloqueadas": float64(3)},
		"totalDemandasEnviadas": float64(12),
		"demandasGratuitas":     float64(2),
	})
	if s.Stats.Sent != 12 || s.Stats.Unlocked != 3 || s.Stats.Free != 2 {
		t.Fatalf("stats = %+v", s.Stats)
	}
}

func TestNormalizeEmptyProfile(t *testing.T) {
	s := Normalize("x", map[string]any{})
	if s.ID != "x" || s.IsFreeDemand() || len(s.Categories) != 0 || len(s.UFs) != 0 {
		t.Fatalf("unexpected defaults: %+v", s)
	}
}
