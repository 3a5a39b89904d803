package adapters

// VehiclePrompt は車両画像と一緒に送るプロンプトです。
const VehiclePrompt = `
Identify the vehicle in this image. Provide a detailed report including:
- Brand and Specific Model
- Engine specs (displacement, cooling)
- Fuel System (Is it carbureted or fuel-injected?)
- Key Features (Wheels, Braking, Drive type)
- Estimated Mileage (km/l or mpg)
- Professional Buyer's Advice
`
