package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	productdomain "github.com/railzwaylabs/bullion/internal/product/domain"
	"github.com/railzwaylabs/bullion/pkg/db/pagination"
)

type productAttributesRequest struct {
	Material *string        `json:"material" binding:"omitempty,material"`
	Purity   *string        `json:"purity"`
	Weight   *float64       `json:"weight" binding:"omitempty,gte=0"`
	Extra    map[string]any `json:"extra"`
}

type productPriceRequest struct {
	Kind      string  `json:"kind" binding:"required"`
	BaseValue float64 `json:"base_value" binding:"gte=0"`
	Formula   *string `json:"formula"`
	Currency  string  `json:"currency" binding:"omitempty,len=3"`
}

type createProductRequest struct {
	ItemID      string                   `json:"item_id"`
	Name        string                   `json:"name" binding:"required"`
	Description *string                  `json:"description"`
	Images      []string                 `json:"images"`
	Stock       int64                    `json:"stock" binding:"gte=0"`
	Attributes  productAttributesRequest `json:"attributes"`
	Price       productPriceRequest      `json:"price"`
}

// @Summary      Create Product
// @Description  Create a product together with its price
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        request body createProductRequest true "Create Product Request"
// @Success      201  {object}  DataResponse
// @Failure      400  {object}  ErrorResponse
// @Router       /products [post]
func (s *Server) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.productSvc.Create(c.Request.Context(), productdomain.CreateRequest{
		ItemID:      strings.TrimSpace(req.ItemID),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Images:      req.Images,
		Stock:       req.Stock,
		Attributes: productdomain.Attributes{
			Material: req.Attributes.Material,
			Purity:   req.Attributes.Purity,
			Weight:   req.Attributes.Weight,
			Extra:    req.Attributes.Extra,
		},
		Price: productdomain.PriceRequest{
			Kind:      req.Price.Kind,
			BaseValue: req.Price.BaseValue,
			Formula:   req.Price.Formula,
			Currency:  req.Price.Currency,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondCreated(c, resp)
}

// @Summary      List Products
// @Description  List products with their live price
// @Tags         products
// @Produce      json
// @Param        page_token  query  string  false  "Page Token"
// @Param        page_size   query  int     false  "Page Size"
// @Success      200  {object}  ListResponse
// @Router       /products [get]
func (s *Server) ListProducts(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.productSvc.List(c.Request.Context(), productdomain.ListRequest{
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, resp.Products, &resp.PageInfo)
}

// @Summary      Get Product
// @Description  Get product by ID with its live price
// @Tags         products
// @Produce      json
// @Param        id   path      string  true  "Product ID"
// @Success      200  {object}  DataResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /products/{id} [get]
func (s *Server) GetProduct(c *gin.Context) {
	resp, err := s.productSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, resp)
}
