package normalize

// Plan attributes.
var (
	PlanTitle       = Field{Name: "title", Keys: []string{"title", "name", "plan_name"}, Kind: KindString}
	PlanDestination = Field{Name: "destination", Keys: []string{"destination", "location", "city"}, Kind: KindString}
	PlanDescription = Field{Name: "description", Keys: []string{"description", "summary"}, Kind: KindString}
	PlanStart       = Field{Name: "start_date", Keys: []string{"start_date", "startDate"}, Kind: KindDate}
	PlanEnd         = Field{Name: "end_date", Keys: []string{"end_date", "endDate"}, Kind: KindDate}
	PlanBudget      = Field{Name: "budget", Keys: []string{"budget", "budget_per_person", "budgetPerPerson"}, Kind: KindNumber}
	PlanBudgetLabel = Field{Name: "budget_label", Keys: []string{"budget", "budget_level"}, Kind: KindString}
	PlanTravelers   = Field{Name: "travelers", Keys: []string{"travelers", "traveler_count", "travelerCount", "travellers"}, Kind: KindNumber}
	PlanPublic      = Field{Name: "is_public", Keys: []string{"is_public", "isPublic"}, Kind: KindBool}
	PlanCover       = Field{Name: "cover_image", Keys: []string{"cover_image", "coverImage"}, Kind: KindString}
	PlanCreator     = Field{Name: "created_by", Keys: []string{"created_by", "user_id", "userId"}, Kind: KindString}

	PlanDays          = Field{Name: "days", Keys: []string{"days"}, Kind: KindList}
	PlanDetails       = Field{Name: "plan_details", Keys: []string{"plan_details", "planDetails"}, Kind: KindObject}
	PlanItinerary     = Field{Name: "itinerary", Keys: []string{"itinerary"}, Kind: KindList}
	PlanActivities    = Field{Name: "activities", Keys: []string{"activities"}, Kind: KindList}
	PlanItineraryDays = Field{Name: "itinerary_days", Keys: []string{"itinerary_days", "itineraryDays"}, Kind: KindList}
	PlanList          = Field{Name: "plans", Keys: []string{"plans", "data", "items"}, Kind: KindList}
)

// Day bucket attributes.
var (
	DayDate       = Field{Name: "date", Keys: []string{"date", "day_date"}, Kind: KindDate}
	DayActivities = Field{Name: "activities", Keys: []string{"activities", "items"}, Kind: KindList}
)

// Activity attributes.
var (
	ActivityName        = Field{Name: "name", Keys: []string{"name", "title"}, Kind: KindString}
	ActivityLocation    = Field{Name: "location", Keys: []string{"location", "place_name"}, Kind: KindString}
	ActivityType        = Field{Name: "type", Keys: []string{"type", "category"}, Kind: KindString}
	ActivityTime        = Field{Name: "time", Keys: []string{"time", "start_time"}, Kind: KindString}
	ActivityDuration    = Field{Name: "duration_minutes", Keys: []string{"duration_minutes", "duration", "durationMinutes"}, Kind: KindNumber}
	ActivityLat         = Field{Name: "lat", Keys: []string{"lat", "latitude"}, Kind: KindNumber}
	ActivityLng         = Field{Name: "lng", Keys: []string{"lng", "longitude", "lon"}, Kind: KindNumber}
	ActivityCoordinates = Field{Name: "coordinates", Keys: []string{"coordinates", "location", "geo"}, Kind: KindObject}
	ActivityPlaceID     = Field{Name: "place_id", Keys: []string{"place_id", "placeId"}, Kind: KindString}
	ActivityAddress     = Field{Name: "address", Keys: []string{"address", "formatted_address"}, Kind: KindString}
	ActivityRating      = Field{Name: "rating", Keys: []string{"rating"}, Kind: KindNumber}
	ActivityPhotos      = Field{Name: "photos", Keys: []string{"photos", "images", "photo", "image"}, Kind: KindList}
	ActivityDescription = Field{Name: "description", Keys: []string{"description", "notes"}, Kind: KindString}
	ActivityDate        = Field{Name: "date", Keys: []string{"date"}, Kind: KindDate}
)
