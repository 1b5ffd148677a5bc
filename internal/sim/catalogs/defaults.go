package catalogs

// Default returns the built-in reference dataset: nine upgrades (six unethical, three ethical
// ones that require an ascension) and nine offers (five unethical, four ethical).
// configs/upgrades.json and configs/offers.json carry the same data.
func Default() *Catalogs {
	c, err := New(DefaultUpgrades(), DefaultOffers())
	if err != nil {
		panic("catalogs: invalid built-in dataset: " + err.Error())
	}
	return c
}

func DefaultUpgrades() []UpgradeDef {
	return []UpgradeDef{
		{ID: "aiBot", Name: "Googlai", Description: "AI that replaces human workers.", Icon: "Bot",
			BaseCost: 15, BaseIncome: 0.3, Reputation: -0.5, Climate: 0.2, Tag: TagUnethical},
		{ID: "lobbyist", Name: "Amazonia Corp", Description: "E-commerce giant lobbying for its own profit.", Icon: "UserCheck",
			BaseCost: 100, BaseIncome: 2, Reputation: -2, Climate: 0.5, Tag: TagUnethical},
		{ID: "marketing", Name: "Metaverse Inc", Description: "Social network harvesting personal data.", Icon: "Eye",
			BaseCost: 300, BaseIncome: 5, Reputation: -1, Climate: 1, Tag: TagUnethical},
		{ID: "offshore", Name: "Appel Systems", Description: "Tech giant fluent in aggressive tax optimisation.", Icon: "Smartphone",
			BaseCost: 800, BaseIncome: 12, Reputation: -5, Climate: 0, Tag: TagUnethical},
		{ID: "teslectric", Name: "Teslectric Motors", Description: "Green revolution on the label, overworked staff on the line.", Icon: "Car",
			BaseCost: 1500, BaseIncome: 15, Reputation: -3, Climate: 0.8, Tag: TagUnethical},
		{ID: "openMind", Name: "OpenMind Corp", Description: "AI startup that claims ethics and chases profit.", Icon: "Brain",
			BaseCost: 2000, BaseIncome: 20, Reputation: -4, Climate: 1.2, Tag: TagUnethical},
		{ID: "greenTech", Name: "Ecosia Search", Description: "Search engine that plants trees on renewable power.", Icon: "Leaf",
			BaseCost: 200, BaseIncome: 1.5, Reputation: 2, Climate: -0.5, RequiresAscension: true, Tag: TagEthical},
		{ID: "ethicalAI", Name: "Too Good To Go", Description: "App fighting food waste alongside local shops.", Icon: "Heart",
			BaseCost: 500, BaseIncome: 4, Reputation: 3, Climate: -0.2, RequiresAscension: true, Tag: TagEthical},
		{ID: "communityPrograms", Name: "Patagonia Green", Description: "Clothing brand investing heavily in the environment.", Icon: "Users",
			BaseCost: 1200, BaseIncome: 8, Reputation: 5, Climate: -1, RequiresAscension: true, Tag: TagEthical},
	}
}

func DefaultOffers() []OfferDef {
	return []OfferDef{
		{ID: "emmanuele", Name: "Emmanuele Macaroni", Description: "Promises a start-up nation, delivers for the ultra-rich.", Icon: "Crown",
			MoneyMultiplier: 1.5, ReputationChange: -10, ClimateChange: 5, Tag: TagUnethical},
		{ID: "brigetta", Name: "Brigetta M.", Description: "Influential patron of cultural initiatives.", Icon: "BookOpen",
			MoneyMultiplier: 1.2, ReputationChange: 5, ClimateChange: 0, Tag: TagEthical},
		{ID: "marina", Name: "Marina LeStylo", Description: "Populist with simple answers.", Icon: "Flag",
			MoneyMultiplier: 1.3, ReputationChange: -15, ClimateChange: 8, Tag: TagUnethical},
		{ID: "gabrielo", Name: "Gabrielo Attali", Description: "Ambitious young politician promising change.", Icon: "Star",
			MoneyMultiplier: 1.1, ReputationChange: 3, ClimateChange: -2, Tag: TagEthical},
		{ID: "donaldo", Name: "Donaldo Triomphe", Description: "Property mogul turned climate-sceptic politician.", Icon: "Building",
			MoneyMultiplier: 2.0, ReputationChange: -20, ClimateChange: 15, Tag: TagUnethical},
		{ID: "jordano", Name: "Jordano Sardella", Description: "Young leader of an old party.", Icon: "Flame",
			MoneyMultiplier: 1.4, ReputationChange: -12, ClimateChange: 6, Tag: TagUnethical},
		{ID: "vladimiro", Name: "Vladimiro Poutinov", Description: "Authoritarian in control of energy supplies.", Icon: "Snowflake",
			MoneyMultiplier: 1.8, ReputationChange: -25, ClimateChange: 20, Tag: TagUnethical},
		{ID: "francesco", Name: "Francesco I", Description: "Spiritual leader campaigning for the environment.", Icon: "Heart",
			MoneyMultiplier: 0.8, ReputationChange: 15, ClimateChange: -10, Tag: TagEthical},
		{ID: "volodymyro", Name: "Volodymyro Zelenskyo", Description: "Charismatic defender of democracy.", Icon: "Shield",
			MoneyMultiplier: 1.0, ReputationChange: 20, ClimateChange: -5, Tag: TagEthical},
	}
}
