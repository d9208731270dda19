package provider

type Registry struct {
	byCode map[int32]Provider
	bySlug map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	byCode := make(map[int32]Provider, len(providers))
	bySlug := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byCode[p.Code()] = p
		bySlug[p.Slug()] = p
	}
	return &Registry{byCode: byCode, bySlug: bySlug}
}

func (r *Registry) Get(code int32) (Provider, error) {
	p, ok := r.byCode[code]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return p, nil
}

func (r *Registry) GetBySlug(slug string) (Provider, error) {
	p, ok := r.bySlug[slug]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return p, nil
}
