package handler

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/catalog"
	"github.com/xenking/bookstore/internal/domain/order"
	"github.com/xenking/bookstore/internal/domain/postal"
	"github.com/xenking/bookstore/internal/domain/user"
)

// dateLayout is the wire format of publication dates.
const dateLayout = "2006-01-02"

type userDTO struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	IsAdmin   bool            `json:"isAdmin"`
	FirstName string          `json:"firstName,omitempty"`
	LastName  string          `json:"lastName,omitempty"`
	Address   *postal.Address `json:"address,omitempty"`
	Phone     string          `json:"phone,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func toUserDTO(u *user.User) userDTO {
	dto := userDTO{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		IsAdmin:   u.IsAdmin,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
	}
	if !u.Address.IsZero() {
		addr := u.Address
		dto.Address = &addr
	}
	return dto
}

type sessionDTO struct {
	Token string  `json:"token"`
	User  userDTO `json:"user"`
}

type bookDTO struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Description     string    `json:"description,omitempty"`
	Price           float64   `json:"price"`
	Stock           int       `json:"stock"`
	ISBN            string    `json:"isbn,omitempty"`
	SKU             string    `json:"sku,omitempty"`
	SquareItemID    string    `json:"squareItemId,omitempty"`
	Tags            []string  `json:"tags"`
	Categories      []string  `json:"categories"`
	CoverImage      string    `json:"coverImage,omitempty"`
	Publisher       string    `json:"publisher,omitempty"`
	PublicationDate string    `json:"publicationDate,omitempty"`
	PageCount       int       `json:"pageCount,omitempty"`
	Format          string    `json:"format,omitempty"`
	Language        string    `json:"language,omitempty"`
	IsUsed          bool      `json:"isUsed"`
	Condition       string    `json:"condition,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (h *Handler) toBookDTO(b *catalog.Book) bookDTO {
	dto := bookDTO{
		ID:           b.ID,
		Title:        b.Title,
		Author:       b.Author,
		Description:  b.Description,
		Price:        b.Price.InexactFloat64(),
		Stock:        b.Stock,
		ISBN:         b.ISBN,
		SKU:          b.SKU,
		SquareItemID: b.SquareItemID,
		Tags:         nonNilStrings(b.Tags),
		Categories:   nonNilStrings(b.Categories),
		CoverImage:   h.imageURL(b.CoverImage),
		Publisher:    b.Publisher,
		PageCount:    b.PageCount,
		Format:       string(b.Format),
		Language:     b.Language,
		IsUsed:       b.IsUsed,
		Condition:    string(b.Condition),
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
	if b.PublicationDate != nil {
		dto.PublicationDate = b.PublicationDate.Format(dateLayout)
	}
	return dto
}

func (h *Handler) toBookDTOs(books []catalog.Book) []bookDTO {
	out := make([]bookDTO, len(books))
	for i := range books {
		out[i] = h.toBookDTO(&books[i])
	}
	return out
}

// imageURL prepends the configured base to relative image paths.
func (h *Handler) imageURL(path string) string {
	if path == "" || h.imageBaseURL == "" || strings.Contains(path, "://") {
		return path
	}
	return h.imageBaseURL + "/" + strings.TrimLeft(path, "/")
}

// bookInput is the body of book create and update requests.
type bookInput struct {
	Title           string          `json:"title"`
	Author          string          `json:"author"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	Stock           int             `json:"stock"`
	ISBN            string          `json:"isbn"`
	SKU             string          `json:"sku"`
	SquareItemID    string          `json:"squareItemId"`
	Tags            []string        `json:"tags"`
	Categories      []string        `json:"categories"`
	CoverImage      string          `json:"coverImage"`
	Publisher       string          `json:"publisher"`
	PublicationDate string          `json:"publicationDate"`
	PageCount       int             `json:"pageCount"`
	Format          string          `json:"format"`
	Language        string          `json:"language"`
	IsUsed          bool            `json:"isUsed"`
	Condition       string          `json:"condition"`
}

// apply copies the input onto b and validates the result.
func (in bookInput) apply(b *catalog.Book) error {
	b.Title = strings.TrimSpace(in.Title)
	b.Author = strings.TrimSpace(in.Author)
	b.Description = in.Description
	b.Price = in.Price
	b.Stock = in.Stock
	b.ISBN = strings.TrimSpace(in.ISBN)
	b.SKU = strings.TrimSpace(in.SKU)
	b.SquareItemID = strings.TrimSpace(in.SquareItemID)
	b.Tags = in.Tags
	b.Categories = in.Categories
	b.CoverImage = in.CoverImage
	b.Publisher = in.Publisher
	b.PageCount = in.PageCount
	b.Format = catalog.Format(in.Format)
	b.Language = in.Language
	b.IsUsed = in.IsUsed
	b.Condition = catalog.Condition(in.Condition)

	b.PublicationDate = nil
	if in.PublicationDate != "" {
		t, err := parseDate(in.PublicationDate)
		if err != nil {
			return &catalog.ValidationError{Field: "publicationDate", Reason: "must be a date like 2006-01-02"}
		}
		b.PublicationDate = &t
	}
	return b.Validate()
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

type bookPageDTO struct {
	Books []bookDTO `json:"books"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Pages int       `json:"pages"`
}

type cartLineDTO struct {
	BookID     string   `json:"bookId"`
	Quantity   int      `json:"quantity"`
	PriceAtAdd float64  `json:"priceAtAdd"`
	Book       *bookDTO `json:"book,omitempty"`
}

type cartDTO struct {
	UserID    string        `json:"userId"`
	Lines     []cartLineDTO `json:"items"`
	Subtotal  float64       `json:"subtotal"`
	UpdatedAt *time.Time    `json:"updatedAt,omitempty"`
}

func toCartDTO(c *cart.Cart) cartDTO {
	dto := cartDTO{
		UserID:   c.UserID,
		Lines:    make([]cartLineDTO, len(c.Lines)),
		Subtotal: c.Subtotal().InexactFloat64(),
	}
	for i, l := range c.Lines {
		dto.Lines[i] = cartLineDTO{
			BookID:     l.BookID,
			Quantity:   l.Quantity,
			PriceAtAdd: l.PriceAtAdd.InexactFloat64(),
		}
	}
	if !c.UpdatedAt.IsZero() {
		t := c.UpdatedAt
		dto.UpdatedAt = &t
	}
	return dto
}

type orderBookDTO struct {
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	CoverImage string  `json:"coverImage,omitempty"`
	Price      float64 `json:"price"`
}

type orderLineDTO struct {
	BookID          string        `json:"bookId"`
	Quantity        int           `json:"quantity"`
	PriceAtPurchase float64       `json:"priceAtPurchase"`
	Book            *orderBookDTO `json:"book,omitempty"`
}

type orderDTO struct {
	ID              string         `json:"id"`
	UserID          string         `json:"userId"`
	Items           []orderLineDTO `json:"items"`
	Total           float64        `json:"totalAmount"`
	ShippingAddress postal.Address `json:"shippingAddress"`
	BillingAddress  postal.Address `json:"billingAddress"`
	PaymentMethod   string         `json:"paymentMethod,omitempty"`
	TransactionID   string         `json:"transactionId,omitempty"`
	Status          string         `json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func (h *Handler) toOrderDTO(o *order.Order) orderDTO {
	dto := orderDTO{
		ID:              o.ID,
		UserID:          o.UserID,
		Items:           make([]orderLineDTO, len(o.Lines)),
		Total:           o.Total.InexactFloat64(),
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		PaymentMethod:   o.PaymentMethod,
		TransactionID:   o.TransactionID,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for i, l := range o.Lines {
		dto.Items[i] = orderLineDTO{
			BookID:          l.BookID,
			Quantity:        l.Quantity,
			PriceAtPurchase: l.PriceAtPurchase.InexactFloat64(),
		}
		if l.Book != nil {
			dto.Items[i].Book = &orderBookDTO{
				Title:      l.Book.Title,
				Author:     l.Book.Author,
				CoverImage: h.imageURL(l.Book.CoverImage),
				Price:      l.Book.Price.InexactFloat64(),
			}
		}
	}
	return dto
}

func (h *Handler) toOrderDTOs(orders []order.Order) []orderDTO {
	out := make([]orderDTO, len(orders))
	for i := range orders {
		out[i] = h.toOrderDTO(&orders[i])
	}
	return out
}

type orderPageDTO struct {
	Orders     []orderDTO `json:"orders"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
