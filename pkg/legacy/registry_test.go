package legacy

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClients(t *testing.T) {
	mock, reader := setupMockDB(t)

	created := time.Date(2018, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"codigo", "tipo", "nome", "documento", "email", "telefone1", "telefone2", "endereco", "numero",
		"complemento", "bairro", "cep", "observacoes", "ativo", "data_cadastro", "data_nascimento",
	}).
		AddRow(int64(1), int64(1), " MARIA DA SILVA ", "123.456.789-01", "maria@example.com", "41 3333-0000", nil,
			"RUA XV", "120", nil, "CENTRO", "80000-000", nil, int64(1), created, nil).
		AddRow(int64(2), int64(2), "PET SHOP LTDA", nil, nil, nil, nil, nil, nil, nil, nil, nil, "obs", nil, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM PET_CLIENTE")).WillReturnRows(rows)

	clients, err := reader.Clients(context.Background())
	require.NoError(t, err)
	require.Len(t, clients, 2)

	assert.Equal(t, ClientRow{
		SourceID: 1, Type: 1, Name: "MARIA DA SILVA", Document: "123.456.789-01", Email: "maria@example.com",
		Phone1: "41 3333-0000", Street: "RUA XV", Number: "120", District: "CENTRO", PostalCode: "80000-000",
		Active: true, CreatedAt: created,
	}, clients[0])

	assert.Equal(t, 2, clients[1].Type)
	assert.True(t, clients[1].Active, "null Ativo reads as active")
	assert.True(t, clients[1].CreatedAt.IsZero())
	assert.Equal(t, "obs", clients[1].Notes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPets(t *testing.T) {
	mock, reader := setupMockDB(t)

	born := time.Date(2015, 7, 20, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"codigo", "nome", "data_nascimento", "raca", "sexo", "porte", "cor", "proprietario",
		"observacoes", "ativo", "data_cadastro",
	}).
		AddRow(int64(10), "REX", born, int64(3), int64(4), int64(2), int64(5), int64(1), nil, int64(0), nil).
		AddRow(int64(11), nil, nil, nil, nil, nil, nil, nil, nil, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM PET_ANIMAL")).WillReturnRows(rows)

	pets, err := reader.Pets(context.Background())
	require.NoError(t, err)
	require.Len(t, pets, 2)

	assert.Equal(t, PetRow{
		SourceID: 10, Name: "REX", BornAt: born, BreedCode: 3, SexCode: 4, SizeCode: 2,
		ColorCode: 5, OwnerID: 1, Active: false,
	}, pets[0])
	assert.Equal(t, PetRow{SourceID: 11, Active: true}, pets[1])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBreedsAndColors(t *testing.T) {
	mock, reader := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM PET_RACA")).WillReturnRows(
		sqlmock.NewRows([]string{"codigo", "descricao", "especie"}).
			AddRow(int64(1), "POODLE ", int64(1)).
			AddRow(int64(2), "SIAMES", nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM PET_COR")).WillReturnRows(
		sqlmock.NewRows([]string{"codigo", "descricao"}).AddRow(int64(7), "CARAMELO"))

	breeds, err := reader.Breeds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []BreedRow{
		{Code: 1, Description: "POODLE", SpeciesID: 1},
		{Code: 2, Description: "SIAMES"},
	}, breeds)

	colors, err := reader.Colors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ColorRow{{Code: 7, Description: "CARAMELO"}}, colors)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVaccines(t *testing.T) {
	mock, reader := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM PET_VACINA")).WillReturnRows(
		sqlmock.NewRows([]string{"codigo", "descricao", "frequencia", "periodo", "preco_compra", "preco_venda"}).
			AddRow(int64(1), " V10 ", int64(1), int64(3), 35.5, 90.0).
			AddRow(int64(2), "ANTIRRABICA", nil, nil, nil, nil))

	vaccines, err := reader.Vaccines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []VaccineRow{
		{SourceID: 1, Name: "V10", Frequency: 1, Period: 3, PurchasePrice: 35.5, SalePrice: 90},
		{SourceID: 2, Name: "ANTIRRABICA"},
	}, vaccines)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVaccinations(t *testing.T) {
	mock, reader := setupMockDB(t)

	applied := time.Date(2023, 4, 10, 0, 0, 0, 0, time.UTC)
	due := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM PET_ANIMAL_VACINA")).WillReturnRows(
		sqlmock.NewRows([]string{"codigo", "animal", "vacina", "data_aplicacao", "data_prevista", "partida", "laboratorio"}).
			AddRow(int64(100), int64(10), int64(1), applied, due, " L123 ", "  ").
			AddRow(int64(101), nil, int64(1), nil, due, nil, nil))

	doses, err := reader.Vaccinations(context.Background())
	require.NoError(t, err)
	require.Len(t, doses, 2)

	assert.Equal(t, VaccinationRow{SourceID: 100, PetID: 10, VaccineID: 1, AppliedAt: applied, DueAt: due, BatchCode: "L123"}, doses[0])
	assert.Zero(t, doses[1].PetID)
	assert.True(t, doses[1].AppliedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryReads_QueryError(t *testing.T) {
	mock, reader := setupMockDB(t)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("relation does not exist"))

	_, err := reader.Vaccinations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PET_ANIMAL_VACINA")
}
