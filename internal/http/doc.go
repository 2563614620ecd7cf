// Package httpapp provides the HTTP API for Memologist.
//
//	@title						Memologist API
//	@version					1.0
//	@description				Backend of a meme sharing site: posts, comments, likes and a hot feed whose score decays over time.
//	@description
//	@description				## Authentication
//	@description
//	@description				Register or log in with email and password to get a bearer token:
//	@description				```bash
//	@description				curl -X POST /api/auth/register -d '{"name":"memer","email":"m@example.com","password":"secret1"}'
//	@description				# Returns: {"token": "TOKEN", "expiresAt": "..."}
//	@description				```
//	@description
//	@description				A signed-in user may attach public keys (POST /api/user/keys) and later
//	@description				sign in by signing a challenge from POST /api/auth/challenge and
//	@description				exchanging it at POST /api/auth/verify.
//	@description
//	@description				## Hot feed
//	@description				Likes, comments and views raise a post's hot score. A job at the top of
//	@description				every hour lowers it by 2 points per hour since the last check, down to -20.
//	@description
//	@description				## Supported Algorithms
//	@description				| Algorithm | Key Format | Notes |
//	@description				|-----------|------------|-------|
//	@description				| ed25519 | base64 | recommended |
//	@description				| secp256k1 | hex | Ethereum personal_sign |
//	@description				| rsa-sha256 | PEM | RSA PKCS#1 v1.5 |
//	@description				| rsa-pss | PEM | RSA PSS |
//
//	@contact.name				Memologist
//	@license.name				MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token from /api/auth/register, /api/auth/login or /api/auth/verify
//
//	@tag.name					Posts
//	@tag.description			Meme posts with text, image links and uploaded images.
//
//	@tag.name					Comments
//	@tag.description			Flat, newest-first discussion under a post.
//
//	@tag.name					Marks
//	@tag.description			Like or dislike posts and comments. Repeating any mark clears it.
//
//	@tag.name					Authentication
//	@tag.description			Password registration and login, and challenge-response key login.
//
//	@tag.name					Users
//	@tag.description			Profiles and login keys.
//
//	@tag.name					Admin
//	@tag.description			Moderation and maintenance endpoints. Requires X-Admin-Secret header.
package httpapp
