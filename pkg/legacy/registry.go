package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ClientRow is one row of PET_CLIENTE.
type ClientRow struct {
	SourceID   int64
	Type       int // 1 is a natural person
	Name       string
	Document   string
	Email      string
	Phone1     string
	Phone2     string
	Street     string
	Number     string // free text in the legacy schema
	Complement string
	District   string
	PostalCode string
	Notes      string
	Active     bool // a null Ativo reads as active
	CreatedAt  time.Time
	BornAt     time.Time
}

// PetRow is one row of PET_ANIMAL. Zero codes mean the column was null.
type PetRow struct {
	SourceID  int64
	Name      string
	BornAt    time.Time
	BreedCode int64
	SexCode   int
	SizeCode  int
	ColorCode int64
	OwnerID   int64
	Notes     string
	Active    bool // a null Ativo reads as active
	CreatedAt time.Time
}

// BreedRow is one row of PET_RACA.
type BreedRow struct {
	Code        int64
	Description string
	SpeciesID   int // 0 when unset
}

// ColorRow is one row of PET_COR.
type ColorRow struct {
	Code        int64
	Description string
}

// VaccineRow is one row of PET_VACINA. Zero numbers mean the column was null.
type VaccineRow struct {
	SourceID      int64
	Name          string
	Frequency     int
	Period        int
	PurchasePrice float64
	SalePrice     float64
}

// VaccinationRow is one row of PET_ANIMAL_VACINA.
type VaccinationRow struct {
	SourceID   int64
	PetID      int64
	VaccineID  int64
	AppliedAt  time.Time
	DueAt      time.Time
	BatchCode  string
	Laboratory string
}

type clientRow struct {
	Codigo         int64          `db:"codigo"`
	Tipo           sql.NullInt64  `db:"tipo"`
	Nome           sql.NullString `db:"nome"`
	Documento      sql.NullString `db:"documento"`
	Email          sql.NullString `db:"email"`
	Telefone1      sql.NullString `db:"telefone1"`
	Telefone2      sql.NullString `db:"telefone2"`
	Endereco       sql.NullString `db:"endereco"`
	Numero         sql.NullString `db:"numero"`
	Complemento    sql.NullString `db:"complemento"`
	Bairro         sql.NullString `db:"bairro"`
	CEP            sql.NullString `db:"cep"`
	Observacoes    sql.NullString `db:"observacoes"`
	Ativo          sql.NullInt64  `db:"ativo"`
	DataCadastro   sql.NullTime   `db:"data_cadastro"`
	DataNascimento sql.NullTime   `db:"data_nascimento"`
}

type petRow struct {
	Codigo         int64          `db:"codigo"`
	Nome           sql.NullString `db:"nome"`
	DataNascimento sql.NullTime   `db:"data_nascimento"`
	Raca           sql.NullInt64  `db:"raca"`
	Sexo           sql.NullInt64  `db:"sexo"`
	Porte          sql.NullInt64  `db:"porte"`
	Cor            sql.NullInt64  `db:"cor"`
	Proprietario   sql.NullInt64  `db:"proprietario"`
	Observacoes    sql.NullString `db:"observacoes"`
	Ativo          sql.NullInt64  `db:"ativo"`
	DataCadastro   sql.NullTime   `db:"data_cadastro"`
}

type breedRow struct {
	Codigo    int64          `db:"codigo"`
	Descricao sql.NullString `db:"descricao"`
	Especie   sql.NullInt64  `db:"especie"`
}

type colorRow struct {
	Codigo    int64          `db:"codigo"`
	Descricao sql.NullString `db:"descricao"`
}

type vaccineRow struct {
	Codigo      int64           `db:"codigo"`
	Descricao   sql.NullString  `db:"descricao"`
	Frequencia  sql.NullInt64   `db:"frequencia"`
	Periodo     sql.NullInt64   `db:"periodo"`
	PrecoCompra sql.NullFloat64 `db:"preco_compra"`
	PrecoVenda  sql.NullFloat64 `db:"preco_venda"`
}

type vaccinationRow struct {
	Codigo        int64          `db:"codigo"`
	Animal        sql.NullInt64  `db:"animal"`
	Vacina        sql.NullInt64  `db:"vacina"`
	DataAplicacao sql.NullTime   `db:"data_aplicacao"`
	DataPrevista  sql.NullTime   `db:"data_prevista"`
	Partida       sql.NullString `db:"partida"`
	Laboratorio   sql.NullString `db:"laboratorio"`
}

const (
	clientsQuery = `
		SELECT Codigo AS codigo, Tipo AS tipo, Nome AS nome, Documento AS documento,
			Email AS email, Telefone1 AS telefone1, Telefone2 AS telefone2,
			Endereco AS endereco, CAST(Numero AS VARCHAR(20)) AS numero,
			Complemento AS complemento, Bairro AS bairro, CEP AS cep,
			Observacoes AS observacoes, Ativo AS ativo,
			DataCadastro AS data_cadastro, DataNascimento AS data_nascimento
		FROM PET_CLIENTE
		ORDER BY Codigo`

	petsQuery = `
		SELECT Codigo AS codigo, Nome AS nome, DataNascimento AS data_nascimento,
			Raca AS raca, Sexo AS sexo, Porte AS porte, Cor AS cor,
			Proprietario AS proprietario, Observacoes AS observacoes,
			Ativo AS ativo, DataCadastro AS data_cadastro
		FROM PET_ANIMAL
		ORDER BY Codigo`

	breedsQuery = `
		SELECT Codigo AS codigo, Descricao AS descricao, Especie AS especie
		FROM PET_RACA
		ORDER BY Codigo`

	colorsQuery = `
		SELECT Codigo AS codigo, Descricao AS descricao
		FROM PET_COR
		ORDER BY Codigo`

	vaccinesQuery = `
		SELECT Codigo AS codigo, Descricao AS descricao, Frequencia AS frequencia,
			Periodo AS periodo, PrecoCompra AS preco_compra, PrecoVenda AS preco_venda
		FROM PET_VACINA
		ORDER BY Codigo`

	vaccinationsQuery = `
		SELECT Codigo AS codigo, Animal AS animal, Vacina AS vacina,
			DataAplicacao AS data_aplicacao, DataPrevista AS data_prevista,
			Partida AS partida, Laboratorio AS laboratorio
		FROM PET_ANIMAL_VACINA
		ORDER BY Codigo`
)

// Clients returns every client ordered by source id. Text columns are trimmed.
func (r *Reader) Clients(ctx context.Context) ([]ClientRow, error) {
	var rows []clientRow
	if err := r.db.SelectContext(ctx, &rows, clientsQuery); err != nil {
		return nil, fmt.Errorf("reading PET_CLIENTE: %w", err)
	}

	out := make([]ClientRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, ClientRow{
			SourceID:   row.Codigo,
			Type:       int(row.Tipo.Int64),
			Name:       text(row.Nome),
			Document:   text(row.Documento),
			Email:      text(row.Email),
			Phone1:     text(row.Telefone1),
			Phone2:     text(row.Telefone2),
			Street:     text(row.Endereco),
			Number:     text(row.Numero),
			Complement: text(row.Complemento),
			District:   text(row.Bairro),
			PostalCode: text(row.CEP),
			Notes:      text(row.Observacoes),
			Active:     active(row.Ativo),
			CreatedAt:  date(row.DataCadastro),
			BornAt:     date(row.DataNascimento),
		})
	}
	return out, nil
}

// Pets returns every animal ordered by source id.
func (r *Reader) Pets(ctx context.Context) ([]PetRow, error) {
	var rows []petRow
	if err := r.db.SelectContext(ctx, &rows, petsQuery); err != nil {
		return nil, fmt.Errorf("reading PET_ANIMAL: %w", err)
	}

	out := make([]PetRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, PetRow{
			SourceID:  row.Codigo,
			Name:      text(row.Nome),
			BornAt:    date(row.DataNascimento),
			BreedCode: row.Raca.Int64,
			SexCode:   int(row.Sexo.Int64),
			SizeCode:  int(row.Porte.Int64),
			ColorCode: row.Cor.Int64,
			OwnerID:   row.Proprietario.Int64,
			Notes:     text(row.Observacoes),
			Active:    active(row.Ativo),
			CreatedAt: date(row.DataCadastro),
		})
	}
	return out, nil
}

// Breeds returns the legacy breed table.
func (r *Reader) Breeds(ctx context.Context) ([]BreedRow, error) {
	var rows []breedRow
	if err := r.db.SelectContext(ctx, &rows, breedsQuery); err != nil {
		return nil, fmt.Errorf("reading PET_RACA: %w", err)
	}

	out := make([]BreedRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, BreedRow{Code: row.Codigo, Description: text(row.Descricao), SpeciesID: int(row.Especie.Int64)})
	}
	return out, nil
}

// Colors returns the legacy coat colour table.
func (r *Reader) Colors(ctx context.Context) ([]ColorRow, error) {
	var rows []colorRow
	if err := r.db.SelectContext(ctx, &rows, colorsQuery); err != nil {
		return nil, fmt.Errorf("reading PET_COR: %w", err)
	}

	out := make([]ColorRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, ColorRow{Code: row.Codigo, Description: text(row.Descricao)})
	}
	return out, nil
}

// Vaccines returns the legacy vaccine catalogue ordered by source id.
func (r *Reader) Vaccines(ctx context.Context) ([]VaccineRow, error) {
	var rows []vaccineRow
	if err := r.db.SelectContext(ctx, &rows, vaccinesQuery); err != nil {
		return nil, fmt.Errorf("reading PET_VACINA: %w", err)
	}

	out := make([]VaccineRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, VaccineRow{
			SourceID:      row.Codigo,
			Name:          text(row.Descricao),
			Frequency:     int(row.Frequencia.Int64),
			Period:        int(row.Periodo.Int64),
			PurchasePrice: row.PrecoCompra.Float64,
			SalePrice:     row.PrecoVenda.Float64,
		})
	}
	return out, nil
}

// Vaccinations returns every scheduled or applied dose ordered by source id.
func (r *Reader) Vaccinations(ctx context.Context) ([]VaccinationRow, error) {
	var rows []vaccinationRow
	if err := r.db.SelectContext(ctx, &rows, vaccinationsQuery); err != nil {
		return nil, fmt.Errorf("reading PET_ANIMAL_VACINA: %w", err)
	}

	out := make([]VaccinationRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, VaccinationRow{
			SourceID:   row.Codigo,
			PetID:      row.Animal.Int64,
			VaccineID:  row.Vacina.Int64,
			AppliedAt:  date(row.DataAplicacao),
			DueAt:      date(row.DataPrevista),
			BatchCode:  text(row.Partida),
			Laboratory: text(row.Laboratorio),
		})
	}
	return out, nil
}

func text(s sql.NullString) string {
	return strings.TrimSpace(s.String)
}

func active(n sql.NullInt64) bool {
	return !n.Valid || n.Int64 != 0
}

func date(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}
