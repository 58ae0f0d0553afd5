package rental

import (
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"
	provide "github.com/provideplatform/provide-go/common"

	"github.com/couchbc/rent/keys"
)

// InstallAPI registers the rental coordination API handlers with gin
func InstallAPI(r *gin.Engine, ctx *Context) {
	r.GET("/api/v1/apartments", ctx.listApartmentsHandler)
	r.POST("/api/v1/apartments", ctx.addApartmentHandler)
	r.GET("/api/v1/apartments/:id", ctx.apartmentDetailsHandler)
	r.DELETE("/api/v1/apartments/:id", ctx.disableApartmentHandler)

	r.GET("/api/v1/rentals", ctx.listRentalsHandler)
	r.POST("/api/v1/rentals", ctx.addRentalRequestHandler)
	r.POST("/api/v1/rentals/:id/accept", ctx.acceptRentalHandler)
	r.POST("/api/v1/rentals/:id/refuse", ctx.refuseRentalHandler)
	r.POST("/api/v1/rentals/:id/withdraw", ctx.withdrawRentalHandler)
	r.POST("/api/v1/rentals/:id/settle", ctx.settleRentalHandler)

	r.GET("/api/v1/accounts", ctx.listAccountsHandler)
	r.GET("/api/v1/contact", ctx.savedContactHandler)
}

func (ctx *Context) resolveAccount(c *gin.Context, address string) *keys.Account {
	if address == "" {
		provide.RenderError("account address required", 400, c)
		return nil
	}
	return ctx.Keys.Registry().Register(address, keys.RoleUnknown)
}

func (ctx *Context) listApartmentsHandler(c *gin.Context) {
	country := c.Query("country")
	city := c.Query("city")
	if country == "" || city == "" {
		provide.RenderError("country and city are required", 400, c)
		return
	}

	apartments, err := ctx.CityApartments(country, city)
	if err != nil {
		provide.RenderError(err.Error(), 500, c)
		return
	}
	provide.Render(apartments, 200, c)
}

func (ctx *Context) addApartmentHandler(c *gin.Context) {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	params := &struct {
		Address       string            `json:"address"`
		Details       *ApartmentDetails `json:"details"`
		PricePerNight uint64            `json:"pricePerNight"`
		Deposit       uint64            `json:"deposit"`
	}{}
	if err := json.Unmarshal(buf, params); err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}
	if params.Details == nil {
		provide.RenderError("apartment details required", 422, c)
		return
	}

	account := ctx.resolveAccount(c, params.Address)
	if account == nil {
		return
	}

	apartment, err := ctx.AddApartment(account, params.Details, params.PricePerNight, params.Deposit)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}
	provide.Render(apartment, 201, c)
}

func (ctx *Context) apartmentDetailsHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		provide.RenderError("invalid apartment id", 400, c)
		return
	}

	apartment, err := ctx.FindApartmentByID(id)
	if err != nil {
		provide.RenderError(err.Error(), 404, c)
		return
	}
	provide.Render(apartment, 200, c)
}

func (ctx *Context) disableApartmentHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		provide.RenderError("invalid apartment id", 400, c)
		return
	}

	account := ctx.resolveAccount(c, c.Query("address"))
	if account == nil {
		return
	}

	if err := ctx.DisableApartment(account, id); err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}
	provide.Render(nil, 204, c)
}

func (ctx *Context) listRentalsHandler(c *gin.Context) {
	rentals, err := ctx.FetchAll(ctx.Keys.Registry().All())
	if err != nil {
		provide.RenderError(err.Error(), 500, c)
		return
	}
	provide.Render(rentals, 200, c)
}

func (ctx *Context) addRentalRequestHandler(c *gin.Context) {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	params := &struct {
		Address     string   `json:"address"`
		ApartmentID uint64   `json:"apartmentId"`
		FromDay     uint64   `json:"fromDay"`
		TillDay     uint64   `json:"tillDay"`
		Contact     *Contact `json:"contact"`
	}{}
	if err := json.Unmarshal(buf, params); err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	account := ctx.resolveAccount(c, params.Address)
	if account == nil {
		return
	}

	apartment, err := ctx.FindApartmentByID(params.ApartmentID)
	if err != nil {
		provide.RenderError(err.Error(), 404, c)
		return
	}

	if params.Contact == nil {
		params.Contact = ctx.SavedContact()
	}

	rental, err := ctx.AddRequest(account, apartment, params.FromDay, params.TillDay, params.Contact)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}
	provide.Render(rental, 201, c)
}

// resolveActionableRental re-resolves the owner-side rental through its
// interaction address so every action operates on verified state only
func (ctx *Context) resolveActionableRental(c *gin.Context, interactionAddress string) *Rental {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		provide.RenderError("invalid rental id", 400, c)
		return nil
	}

	rental, err := ctx.FindByInteractionAddress(interactionAddress)
	if err != nil {
		provide.RenderError(err.Error(), 500, c)
		return nil
	}
	if rental == nil || rental.ID != id {
		provide.RenderError("rental not found", 404, c)
		return nil
	}
	return rental
}

func (ctx *Context) acceptRentalHandler(c *gin.Context) {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	params := &struct {
		Address            string   `json:"address"`
		InteractionAddress string   `json:"interactionAddress"`
		Contact            *Contact `json:"contact"`
	}{}
	if err := json.Unmarshal(buf, params); err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}
	if params.Contact == nil {
		provide.RenderError("owner contact data required", 422, c)
		return
	}

	account := ctx.resolveAccount(c, params.Address)
	if account == nil {
		return
	}

	rental := ctx.resolveActionableRental(c, params.InteractionAddress)
	if rental == nil {
		return
	}

	if err := ctx.Accept(account, rental, params.Contact); err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}
	provide.Render(rental, 200, c)
}

func (ctx *Context) refuseRentalHandler(c *gin.Context) {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	params := &struct {
		Address            string `json:"address"`
		InteractionAddress string `json:"interactionAddress"`
	}{}
	if err := json.Unmarshal(buf, params); err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	account := ctx.resolveAccount(c, params.Address)
	if account == nil {
		return
	}

	rental := ctx.resolveActionableRental(c, params.InteractionAddress)
	if rental == nil {
		return
	}

	if err := ctx.Refuse(account, rental); err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}
	provide.Render(rental, 200, c)
}

func (ctx *Context) withdrawRentalHandler(c *gin.Context) {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	params := &struct {
		Address string `json:"address"`
	}{}
	if err := json.Unmarshal(buf, params); err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		provide.RenderError("invalid rental id", 400, c)
		return
	}

	account := ctx.resolveAccount(c, params.Address)
	if account == nil {
		return
	}

	if err := ctx.Withdraw(account, &Rental{ID: id}); err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}
	provide.Render(nil, 204, c)
}

func (ctx *Context) settleRentalHandler(c *gin.Context) {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	params := &struct {
		Address            string          `json:"address"`
		InteractionAddress string          `json:"interactionAddress"`
		Review             *TenantReview   `json:"review"`
		Claim              *DeductionClaim `json:"claim"`
		MediatorPublicKeyX string          `json:"mediatorPublicKeyX"`
		MediatorPublicKeyY string          `json:"mediatorPublicKeyY"`
	}{}
	if err := json.Unmarshal(buf, params); err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}
	if params.Review == nil {
		provide.RenderError("tenant review required", 422, c)
		return
	}

	account := ctx.resolveAccount(c, params.Address)
	if account == nil {
		return
	}

	rental := ctx.resolveActionableRental(c, params.InteractionAddress)
	if rental == nil {
		return
	}

	var mediatorPublicKey []byte
	if params.Claim != nil && params.Claim.Amount > 0 {
		mediatorPublicKey, err = keys.PublicKeyFromXY(params.MediatorPublicKeyX, params.MediatorPublicKeyY)
		if err != nil {
			provide.RenderError("mediator public key required for deposit deduction", 422, c)
			return
		}
	}

	if err := ctx.Settle(account, rental, params.Review, params.Claim, mediatorPublicKey); err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}
	provide.Render(rental, 200, c)
}

func (ctx *Context) listAccountsHandler(c *gin.Context) {
	provide.Render(ctx.Keys.Registry().All(), 200, c)
}

func (ctx *Context) savedContactHandler(c *gin.Context) {
	provide.Render(ctx.SavedContact(), 200, c)
}
