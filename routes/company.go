package routes

import (
	"strings"

	"github.com/Jahangir-Hossain99/Job-Site/models"
	"github.com/Jahangir-Hossain99/Job-Site/storage"
	"github.com/Jahangir-Hossain99/Job-Site/utils"

	"github.com/kataras/iris/v12"
	"golang.org/x/crypto/bcrypt"
)

func RegisterCompany(ctx iris.Context) {
	var companyInput RegisterCompanyInput
	err := ctx.ReadJSON(&companyInput)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var newCompany models.Company
	companyExists, companyExistsErr := getAndHandleCompanyExists(&newCompany, companyInput.Email)
	if companyExistsErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if companyExists {
		utils.CreateEmailAlreadyRegistered(ctx)
		return
	}

	hashedPassword, hashErr := hashAndSaltPassword(companyInput.Password)
	if hashErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	newCompany = models.Company{
		Name:        companyInput.Name,
		Email:       strings.ToLower(companyInput.Email),
		Password:    hashedPassword,
		Description: companyInput.Description,
		Website:     companyInput.Website,
		Industry:    companyInput.Industry,
		City:        companyInput.City,
		Country:     companyInput.Country,
	}

	storage.DB.Create(&newCompany)

	returnCompany(newCompany, ctx)
}

func LoginCompany(ctx iris.Context) {
	var companyInput LoginCompanyInput
	err := ctx.ReadJSON(&companyInput)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var existingCompany models.Company
	errorMsg := "Invalid email or password."
	companyExists, companyExistsErr := getAndHandleCompanyExists(&existingCompany, companyInput.Email)
	if companyExistsErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if !companyExists {
		utils.CreateError(iris.StatusUnauthorized, "Credentials Error", errorMsg, ctx)
		return
	}

	passwordErr := bcrypt.CompareHashAndPassword([]byte(existingCompany.Password), []byte(companyInput.Password))
	if passwordErr != nil {
		utils.CreateError(iris.StatusUnauthorized, "Credentials Error", errorMsg, ctx)
		return
	}

	returnCompany(existingCompany, ctx)
}

// GetCompany returns a company's public record.
func GetCompany(ctx iris.Context) {
	params := ctx.Params()
	id := params.Get("id")

	var company models.Company
	companyExists := storage.DB.Where("id = ?", id).Limit(1).Find(&company)

	if companyExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if companyExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return
	}

	ctx.JSON(company)
}

func getAndHandleCompanyExists(company *models.Company, email string) (exists bool, err error) {
	companyExistsQuery := storage.DB.Where("email = ?", strings.ToLower(email)).Limit(1).Find(&company)

	if companyExistsQuery.Error != nil {
		return false, companyExistsQuery.Error
	}

	return companyExistsQuery.RowsAffected > 0, nil
}

func returnCompany(company models.Company, ctx iris.Context) {
	tokenPair, tokenErr := utils.CreateTokenPair(company.ID, models.PartyKindCompany)
	if tokenErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{
		"ID":           company.ID,
		"name":         company.Name,
		"email":        company.Email,
		"status":       company.Status,
		"accessToken":  string(tokenPair.AccessToken),
		"refreshToken": string(tokenPair.RefreshToken),
	})
}

type RegisterCompanyInput struct {
	Name        string `json:"name" validate:"required,max=256"`
	Email       string `json:"email" validate:"required,max=256,email"`
	Password    string `json:"password" validate:"required,min=8,max=256"`
	Description string `json:"description" validate:"max=2048"`
	Website     string `json:"website" validate:"omitempty,url"`
	Industry    string `json:"industry" validate:"max=256"`
	City        string `json:"city" validate:"max=256"`
	Country     string `json:"country" validate:"max=256"`
}

type LoginCompanyInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
