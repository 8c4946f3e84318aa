package domain

import "github.com/samber/lo"

// Item is a candidate movie shown to both participants.
type Item struct {
	ID      ItemID   `json:"id"`
	Title   string   `json:"title"`
	Year    int      `json:"year"`
	Genres  []string `json:"genres"`
	Rating  float64  `json:"rating"`
	Poster  string   `json:"poster"`
	Summary string   `json:"summary"`
}

// Trailer is a YouTube video for an item.
type Trailer struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// FallbackItems is served when the catalog provider has nothing to offer.
var FallbackItems = []Item{
	{
		ID: "1", Title: "Inception", Year: 2010, Rating: 8.8,
		Genres:  []string{"Sci-Fi", "Action", "Thriller"},
		Poster:  "https://image.tmdb.org/t/p/w500/9gk7adHYeDvHkCSEqAvQNLV5Uge.jpg",
		Summary: "A thief who steals corporate secrets through dream-sharing technology is asked to plant an idea in a CEO's mind.",
	},
	{
		ID: "2", Title: "Interstellar", Year: 2014, Rating: 8.6,
		Genres:  []string{"Sci-Fi", "Drama", "Adventure"},
		Poster:  "https://image.tmdb.org/t/p/w500/gEU2QniL6C8z1dY4uvReqETvDn.jpg",
		Summary: "Explorers travel through a wormhole in space to secure humanity's survival.",
	},
	{
		ID: "3", Title: "The Dark Knight", Year: 2008, Rating: 9.0,
		Genres:  []string{"Action", "Crime", "Drama"},
		Poster:  "https://image.tmdb.org/t/p/w500/qJ2tW6WMUDux911r6m7haRef0WH.jpg",
		Summary: "Batman faces the Joker, who wreaks havoc and chaos on the people of Gotham.",
	},
	{
		ID: "4", Title: "Pulp Fiction", Year: 1994, Rating: 8.9,
		Genres:  []string{"Crime", "Drama"},
		Poster:  "https://image.tmdb.org/t/p/w500/fIE3lAGcZDV1G6XM5KmuWnNsPp1.jpg",
		Summary: "Two mob hitmen, a boxer, a gangster and his wife intertwine in four tales of violence and redemption.",
	},
	{
		ID: "5", Title: "The Matrix", Year: 1999, Rating: 8.7,
		Genres:  []string{"Action", "Sci-Fi"},
		Poster:  "https://image.tmdb.org/t/p/w500/f89U3ADr1oiB1s9GkdPOEpXUk5H.jpg",
		Summary: "A hacker learns the true nature of his reality and his role in the war against its controllers.",
	},
	{
		ID: "6", Title: "Forrest Gump", Year: 1994, Rating: 8.8,
		Genres:  []string{"Drama", "Romance"},
		Poster:  "https://image.tmdb.org/t/p/w500/h5J4W4veyxMXDmjeNxjLXpR51TM.jpg",
		Summary: "Decades of American history unfold from the perspective of an Alabama man with a simple heart.",
	},
	{
		ID: "7", Title: "Fight Club", Year: 1999, Rating: 8.8,
		Genres:  []string{"Drama"},
		Poster:  "https://image.tmdb.org/t/p/w500/pB8BM7pdSp6B6Ih7QZ4DrQ3PmJK.jpg",
		Summary: "An insomniac office worker and a soap maker form an underground fight club.",
	},
}

func ItemIDs(items []Item) []ItemID {
	return lo.Map(items, func(item Item, _ int) ItemID { return item.ID })
}

// ValidItemID reports whether id is 1 to 64 printable ASCII characters without a colon.
func ValidItemID(id ItemID) bool {
	if len(id) == 0 || len(id) > 64 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x20 || c > 0x7e || c == ':' {
			return false
		}
	}
	return true
}

// FallbackItem looks an id up in the static list.
func FallbackItem(id ItemID) (Item, bool) {
	return lo.Find(FallbackItems, func(item Item) bool { return item.ID == id })
}
