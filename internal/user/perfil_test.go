package user

import "testing"

func TestClassificarPerfil(t *testing.T) {
	tests := []struct {
		raw  string
		want Perfil
	}{
		{"Cuidador", PerfilCuidador},
		{"cuidador de pessoa com TEA", PerfilCuidador},
		{"Pessoa com TEA", PerfilPessoaTEA},
		{"tea", PerfilPessoaTEA},
		{"Profissional de saúde", PerfilProfissional},
		{"PROFISSIONAL", PerfilProfissional},
		{"Administrador", PerfilAdministrador},
		{"", PerfilNaoClassificado},
		{"familiar", PerfilNaoClassificado},
	}

	for _, tc := range tests {
		if got := ClassificarPerfil(tc.raw); got != tc.want {
			t.Errorf("ClassificarPerfil(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestProfissionalOuAdmin(t *testing.T) {
	if !PerfilProfissional.ProfissionalOuAdmin() {
		t.Error("profissional deveria satisfazer ProfissionalOuAdmin")
	}
	if !PerfilAdministrador.ProfissionalOuAdmin() {
		t.Error("administrador deveria satisfazer ProfissionalOuAdmin")
	}
	if PerfilCuidador.ProfissionalOuAdmin() {
		t.Error("cuidador não deveria satisfazer ProfissionalOuAdmin")
	}
}
