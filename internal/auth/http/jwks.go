package http

import (
	"net/http"

	"github.com/aussiebroadwan/authz/pkg/authsdk"
	"github.com/aussiebroadwan/authz/pkg/httpx"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

// KeyPublisher returns the public keys tokens are signed with.
type KeyPublisher interface {
	JWKS() jwtx.JWKS
}

// JWKSHandler exposes the JSON Web Key Set for public key discovery. With a
// shared-secret signer there is nothing to publish and the set is empty.
//
//	@Summary		Get JWKS
//	@Description	Returns the JSON Web Key Set used to verify session tokens, id_tokens and signed responses.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get]
func JWKSHandler(keys KeyPublisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks := jwtx.JWKS{Keys: []jwtx.JWK{}}
		if keys != nil {
			if published := keys.JWKS(); len(published.Keys) > 0 {
				jwks = published
			}
		}
		httpx.WriteJSON(w, http.StatusOK, authsdk.JWKSResponse(jwks))
	}
}
