package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/repositories"
)

const addressIDPrefix = "addr_"

// ErrAddressInvalidInput indicates a malformed address payload.
var ErrAddressInvalidInput = errors.New("address service: invalid input")

// ErrAddressNotFound indicates the addressed record does not exist for the user.
var ErrAddressNotFound = errors.New("address service: not found")

// ErrAddressUnavailable indicates a backend failure.
var ErrAddressUnavailable = errors.New("address service: unavailable")

// AddressServiceDeps bundles constructor inputs for the address book service.
type AddressServiceDeps struct {
	Addresses repositories.AddressRepository
	Clock     Clock
	IDGen     func() string
	Logger    func(context.Context, string, map[string]any)
}

type addressService struct {
	addresses repositories.AddressRepository
	sanitizer *bluemonday.Policy
	now       Clock
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewAddressService constructs the per-user address book.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Addresses == nil {
		return nil, errors.New("address service: address repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &addressService{
		addresses: deps.Addresses,
		sanitizer: bluemonday.StrictPolicy(),
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

func (s *addressService) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrAddressInvalidInput)
	}
	addrs, err := s.addresses.List(ctx, userID)
	if err != nil {
		return nil, s.translate(err)
	}
	return addrs, nil
}

func (s *addressService) GetAddress(ctx context.Context, userID string, addressID string) (Address, error) {
	userID = strings.TrimSpace(userID)
	addressID = strings.TrimSpace(addressID)
	if userID == "" || addressID == "" {
		return Address{}, fmt.Errorf("%w: user id and address id are required", ErrAddressInvalidInput)
	}
	addr, err := s.addresses.Get(ctx, userID, addressID)
	if err != nil {
		return Address{}, s.translate(err)
	}
	return addr, nil
}

// CreateAddress saves a new delivery address. An input matching an existing
// record by fingerprint returns that record instead of forking a duplicate.
// The user's first address becomes the default.
func (s *addressService) CreateAddress(ctx context.Context, cmd SaveAddressCommand) (Address, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Address{}, fmt.Errorf("%w: user id is required", ErrAddressInvalidInput)
	}
	addr, err := s.buildAddress(userID, cmd.Address)
	if err != nil {
		return Address{}, err
	}

	existing, found, err := s.addresses.FindByHash(ctx, userID, addr.Hash)
	if err != nil {
		return Address{}, s.translate(err)
	}
	if found {
		return existing, nil
	}

	hasAny, err := s.addresses.HasAny(ctx, userID)
	if err != nil {
		return Address{}, s.translate(err)
	}

	now := s.now()
	addr.ID = addressIDPrefix + s.newID()
	addr.Default = !hasAny
	addr.CreatedAt = now
	addr.UpdatedAt = now

	saved, err := s.addresses.Insert(ctx, userID, addr)
	if err != nil {
		return Address{}, s.translate(err)
	}
	s.logger(ctx, "address.created", map[string]any{
		"user_id":    userID,
		"address_id": saved.ID,
	})
	return saved, nil
}

// UpdateAddress replaces the fields of an existing address. The default flag
// is managed through SetDefaultAddress, not here.
func (s *addressService) UpdateAddress(ctx context.Context, cmd SaveAddressCommand) (Address, error) {
	userID := strings.TrimSpace(cmd.UserID)
	addressID := strings.TrimSpace(cmd.AddressID)
	if userID == "" || addressID == "" {
		return Address{}, fmt.Errorf("%w: user id and address id are required", ErrAddressInvalidInput)
	}
	current, err := s.addresses.Get(ctx, userID, addressID)
	if err != nil {
		return Address{}, s.translate(err)
	}

	addr, err := s.buildAddress(userID, cmd.Address)
	if err != nil {
		return Address{}, err
	}
	addr.ID = current.ID
	addr.Default = current.Default
	addr.CreatedAt = current.CreatedAt
	addr.UpdatedAt = s.now()

	saved, err := s.addresses.Upsert(ctx, userID, &addressID, addr)
	if err != nil {
		return Address{}, s.translate(err)
	}
	return saved, nil
}

func (s *addressService) DeleteAddress(ctx context.Context, userID string, addressID string) error {
	userID = strings.TrimSpace(userID)
	addressID = strings.TrimSpace(addressID)
	if userID == "" || addressID == "" {
		return fmt.Errorf("%w: user id and address id are required", ErrAddressInvalidInput)
	}
	if err := s.addresses.Delete(ctx, userID, addressID); err != nil {
		return s.translate(err)
	}
	s.logger(ctx, "address.deleted", map[string]any{
		"user_id":    userID,
		"address_id": addressID,
	})
	return nil
}

func (s *addressService) SetDefaultAddress(ctx context.Context, userID string, addressID string) (Address, error) {
	userID = strings.TrimSpace(userID)
	addressID = strings.TrimSpace(addressID)
	if userID == "" || addressID == "" {
		return Address{}, fmt.Errorf("%w: user id and address id are required", ErrAddressInvalidInput)
	}
	addr, err := s.addresses.SetDefault(ctx, userID, addressID)
	if err != nil {
		return Address{}, s.translate(err)
	}
	return addr, nil
}

func (s *addressService) buildAddress(userID string, input AddressInput) (domain.Address, error) {
	addr := domain.Address{
		UserID:       userID,
		Label:        strings.TrimSpace(input.Label),
		Line1:        strings.TrimSpace(input.Line1),
		Line2:        strings.TrimSpace(input.Line2),
		City:         strings.TrimSpace(input.City),
		Region:       strings.TrimSpace(input.Region),
		PostalCode:   strings.TrimSpace(input.PostalCode),
		Country:      strings.TrimSpace(input.Country),
		Instructions: strings.TrimSpace(s.sanitizer.Sanitize(input.Instructions)),
	}
	if addr.Line1 == "" {
		return domain.Address{}, fmt.Errorf("%w: line1 is required", ErrAddressInvalidInput)
	}
	if addr.City == "" {
		return domain.Address{}, fmt.Errorf("%w: city is required", ErrAddressInvalidInput)
	}
	if addr.PostalCode == "" {
		return domain.Address{}, fmt.Errorf("%w: postal code is required", ErrAddressInvalidInput)
	}
	if addr.Country == "" {
		return domain.Address{}, fmt.Errorf("%w: country is required", ErrAddressInvalidInput)
	}
	addr.Hash = addr.Fingerprint()
	return addr, nil
}

func (s *addressService) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAddressInvalidInput):
		return err
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %v", ErrAddressNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrAddressUnavailable, err)
	}
}

var _ AddressService = (*addressService)(nil)
