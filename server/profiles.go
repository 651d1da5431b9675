package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/luckystar-app/luckystar/astro"
	"github.com/luckystar-app/luckystar/store"
)

func (b *Backend) profileRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", WrapRestHandler(b.ListProfiles))
	r.Post("/", WrapRestHandler(b.CreateProfile))
	r.Get("/current", WrapRestHandler(b.GetCurrentProfile))
	r.Get("/{id}", WrapRestHandler(b.GetProfile))
	r.Put("/{id}", WrapRestHandler(b.UpdateProfile))
	r.Delete("/{id}", WrapRestHandler(b.DeleteProfile))
	r.Post("/{id}/activate", WrapRestHandler(b.ActivateProfile))

	return r
}

// ProfileRequest carries the onboarding form fields.
type ProfileRequest struct {
	Nickname      string  `json:"nickname"`
	Gender        string  `json:"gender,omitempty"`
	BirthDate     string  `json:"birthDate"`
	BirthTime     string  `json:"birthTime"`
	BirthLocation string  `json:"birthLocation"`
	Latitude      float64 `json:"latitude,omitempty"`
	Longitude     float64 `json:"longitude,omitempty"`
	Avatar        string  `json:"avatar,omitempty"`
}

// buildProfile turns a request into a stored profile: signs are derived from
// the birth data, and a typed-but-unselected location falls back to the best
// gazetteer match for coordinates.
func (b *Backend) buildProfile(req ProfileRequest) (store.Profile, error) {
	if req.Nickname == "" {
		return store.Profile{}, CodedError(errors.New("nickname is required"), http.StatusBadRequest)
	}

	signs, err := astro.CalculateSigns(req.BirthDate, req.BirthTime)
	if err != nil {
		return store.Profile{}, CodedError(err, http.StatusBadRequest)
	}

	birth := store.BirthInfo{
		BirthDate:     req.BirthDate,
		BirthTime:     req.BirthTime,
		BirthLocation: req.BirthLocation,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
	}
	if birth.Latitude == 0 && birth.Longitude == 0 && birth.BirthLocation != "" {
		if city, ok, err := b.gaz.Resolve(birth.BirthLocation); err != nil {
			return store.Profile{}, CodedError(err, http.StatusInternalServerError)
		} else if ok {
			birth.BirthLocation = city.Name
			birth.Latitude = city.Latitude
			birth.Longitude = city.Longitude
		}
	}

	return store.Profile{
		Nickname:      req.Nickname,
		Gender:        req.Gender,
		BirthInfo:     birth,
		SunSign:       signs.Sun,
		MoonSign:      signs.Moon,
		AscendantSign: signs.Ascendant,
		Avatar:        req.Avatar,
	}, nil
}

func (b *Backend) ListProfiles(_ *http.Request) (any, error) {
	profiles, err := b.store.Profiles()
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	if profiles == nil {
		profiles = []store.Profile{}
	}
	return profiles, nil
}

func (b *Backend) CreateProfile(r *http.Request) (any, error) {
	req, err := ParseRequestBody[ProfileRequest](r)
	if err != nil {
		return nil, err
	}

	profile, err := b.buildProfile(req)
	if err != nil {
		return nil, err
	}

	created, err := b.store.AddProfile(profile)
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	return created, nil
}

func (b *Backend) GetProfile(r *http.Request) (any, error) {
	profile, err := b.store.Profile(chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		return nil, CodedError(err, http.StatusNotFound)
	}
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	return profile, nil
}

func (b *Backend) GetCurrentProfile(_ *http.Request) (any, error) {
	profile, ok, err := b.store.CurrentUser()
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	if !ok {
		return nil, CodedError(errors.New("no current profile"), http.StatusNotFound)
	}
	return profile, nil
}

func (b *Backend) UpdateProfile(r *http.Request) (any, error) {
	id := chi.URLParam(r, "id")
	if _, err := b.store.Profile(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, CodedError(err, http.StatusNotFound)
		}
		return nil, CodedError(err, http.StatusInternalServerError)
	}

	req, err := ParseRequestBody[ProfileRequest](r)
	if err != nil {
		return nil, err
	}

	profile, err := b.buildProfile(req)
	if err != nil {
		return nil, err
	}
	profile.ID = id

	if err := b.store.UpdateProfile(profile); err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	return profile, nil
}

func (b *Backend) DeleteProfile(r *http.Request) (any, error) {
	err := b.store.DeleteProfile(chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		return nil, CodedError(err, http.StatusNotFound)
	}
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	return nil, nil
}

func (b *Backend) ActivateProfile(r *http.Request) (any, error) {
	id := chi.URLParam(r, "id")
	err := b.store.SetCurrentUser(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, CodedError(err, http.StatusNotFound)
	}
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	return map[string]string{"current": id}, nil
}
